package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/discovery/internal/model"
)

func sampleSearch() *model.SearchEvent {
	return &model.SearchEvent{
		SessionID:     "ss-1",
		PaginationID:  "spc",
		Configuration: "default",
		Query:         "test",
		Page:          1,
		PageSize:      10,
		TotalElements: 3,
		Returned:      3,
	}
}

func TestNoopPublisher_DropsEveryTopic(t *testing.T) {
	pub := &NoopPublisher{}
	tests := []struct {
		topic string
		event any
	}{
		{TopicSessionOpened, SessionOpened{SessionID: "ss-1"}},
		{TopicSessionClosed, SessionClosed{SessionID: "ss-1"}},
		{TopicSearchPerformed, SearchPerformed{Search: sampleSearch()}},
		{TopicSearchPerformed, nil},
	}
	for _, tt := range tests {
		if err := pub.Publish(context.Background(), tt.topic, tt.event); err != nil {
			t.Errorf("Publish(%s) = %v, want nil", tt.topic, err)
		}
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close = %v, want nil", err)
	}
}

func TestNATSPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	// Subscribe to capture published messages.
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicSearchPerformed, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := SearchPerformed{Search: sampleSearch()}
	if err := pub.Publish(context.Background(), TopicSearchPerformed, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.Flush()

	select {
	case msg := <-ch:
		got, err := DecodeSearchPerformed(msg.Data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Search.Query != "test" || got.Search.SessionID != "ss-1" {
			t.Errorf("got %+v", got.Search)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishCanceledContext(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pub.Publish(ctx, TopicSearchPerformed, SearchPerformed{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNATSPublisher_PublishMultipleTopics(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 3)
	sub, err := nc.ChanSubscribe(TopicAll, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	for _, tc := range []struct {
		topic string
		event any
	}{
		{TopicSearchPerformed, SearchPerformed{Search: sampleSearch()}},
		{TopicSessionOpened, SessionOpened{SessionID: "ss-1", URL: "/search"}},
		{TopicSessionClosed, SessionClosed{SessionID: "ss-1", Reason: "idle"}},
	} {
		if err := pub.Publish(context.Background(), tc.topic, tc.event); err != nil {
			t.Fatalf("Publish(%s): %v", tc.topic, err)
		}
	}
	pub.Flush()

	for i := 0; i < 3; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close returned unexpected error: %v", err)
	}
	if !pub.conn.IsClosed() {
		t.Error("expected connection to be closed")
	}
}

func TestDecodeSearchPerformed(t *testing.T) {
	data, _ := json.Marshal(SearchPerformed{Search: sampleSearch()})
	ev, err := DecodeSearchPerformed(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Search.PaginationID != "spc" {
		t.Errorf("pagination id = %q", ev.Search.PaginationID)
	}

	for _, bad := range []string{`{`, `{}`, `{"search": null}`} {
		if _, err := DecodeSearchPerformed([]byte(bad)); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}
