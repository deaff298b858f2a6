package events

import (
	"context"
	"testing"
	"time"
)

func TestMatchTopic(t *testing.T) {
	for _, tc := range []struct {
		pattern, topic string
		want           bool
	}{
		{"discovery.search.performed", "discovery.search.performed", true},
		{"discovery.>", "discovery.search.performed", true},
		{"discovery.>", "discovery", false},
		{"discovery.*.performed", "discovery.search.performed", true},
		{"discovery.*", "discovery.search.performed", false},
		{"discovery.session.*", "discovery.search.performed", false},
		{">", "anything.at.all", true},
	} {
		if got := MatchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestLocalBus_PublishSubscribe(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()

	searches, cancel, err := bus.Subscribe(TopicSearchPerformed)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()
	sessions, cancel2, err := bus.Subscribe("discovery.session.*")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel2()

	ctx := context.Background()
	if err := bus.Publish(ctx, TopicSearchPerformed, SearchPerformed{Search: sampleSearch()}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-searches:
		ev, err := DecodeSearchPerformed(data)
		if err != nil || ev.Search.Query != "test" {
			t.Fatalf("unexpected payload %s (%v)", data, err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for search event")
	}

	select {
	case data := <-sessions:
		t.Fatalf("session subscriber received %s", data)
	default:
	}
}

func TestLocalBus_CancelAndClose(t *testing.T) {
	bus := NewLocalBus()
	ch, cancel, err := bus.Subscribe(TopicAll)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after cancel")
	}

	ch2, _, _ := bus.Subscribe(TopicAll)
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-ch2; ok {
		t.Error("expected closed channel after Close")
	}
	if err := bus.Publish(context.Background(), TopicSearchPerformed, SearchPerformed{}); err == nil {
		t.Error("expected error publishing on a closed bus")
	}
	if _, _, err := bus.Subscribe(TopicAll); err == nil {
		t.Error("expected error subscribing to a closed bus")
	}
}

func TestLocalBus_DropsWhenFull(t *testing.T) {
	bus := NewLocalBus()
	defer bus.Close()
	ch, cancel, _ := bus.Subscribe(TopicAll)
	defer cancel()

	for i := 0; i < 100; i++ {
		if err := bus.Publish(context.Background(), TopicSessionOpened, SessionOpened{SessionID: "x"}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if n := len(ch); n != 64 {
		t.Errorf("buffered = %d, want 64", n)
	}
}
