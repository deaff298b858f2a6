package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/alfredjeanlab/discovery/internal/client"
	"github.com/alfredjeanlab/discovery/internal/events"
	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSearcher answers searches keyed by query. A gate, when present,
// holds the answer until it is closed.
type fakeSearcher struct {
	mu        sync.Mutex
	searches  int
	gates     map[string]chan struct{}
	empty     bool
	err       error
	configErr error
}

func (f *fakeSearcher) gate(query string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	f.gates[query] = ch
	return ch
}

func (f *fakeSearcher) Search(ctx context.Context, opts model.PaginatedSearchOptions) (*model.SearchResult, error) {
	f.mu.Lock()
	f.searches++
	gate := f.gates[opts.Query]
	err, empty := f.err, f.empty
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	res := &model.SearchResult{Page: model.PageInfo{Number: opts.Pagination.CurrentPage, Size: opts.Pagination.PageSize}}
	if !empty {
		res.Page.TotalElements = 1
		res.Objects = []*model.SearchObject{{ID: "hit-" + opts.Query, Name: opts.Query}}
	}
	return res, nil
}

func (f *fakeSearcher) SearchConfig(_ context.Context, configuration, scope string) (*model.SearchConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return nil, f.configErr
	}
	return &model.SearchConfig{
		Configuration: configuration,
		Scope:         scope,
		Filters:       []model.FilterConfig{{Name: "author", HasFacets: true}},
	}, nil
}

func (f *fakeSearcher) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searches
}

func options(query string) model.PaginatedSearchOptions {
	return model.PaginatedSearchOptions{
		SearchOptions: model.SearchOptions{Configuration: "default", Query: query, ViewMode: model.ViewModeList},
		Pagination:    model.Pagination{ID: "spc", CurrentPage: 1, PageSize: 10},
		Sort:          model.SortOptions{Field: "score", Direction: model.SortDesc},
	}
}

func newTestDriver(t *testing.T, s Searcher, opts ...Option) *Driver {
	t.Helper()
	d := New(s, opts...)
	t.Cleanup(func() { d.Close() })
	return d
}

func waitOutcome(t *testing.T, ch <-chan Outcome, pred func(Outcome) bool) Outcome {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var last Outcome
	for {
		select {
		case o, ok := <-ch:
			if !ok {
				t.Fatalf("outcome stream closed; last %+v", last)
			}
			if pred(o) {
				return o
			}
			last = o
		case <-deadline:
			t.Fatalf("timed out waiting for outcome; last state %q", last.State)
		}
	}
}

func settled(o Outcome) bool { return o.IsSettled() }

func waitCounter(t *testing.T, c prometheus.Collector, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(c) != want {
		if time.Now().After(deadline) {
			t.Fatalf("counter = %v, want %v", testutil.ToFloat64(c), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDriver_Success(t *testing.T) {
	bus := events.NewLocalBus()
	defer bus.Close()
	evs, cancelEvs, err := bus.Subscribe(events.TopicSearchPerformed)
	if err != nil {
		t.Fatal(err)
	}
	defer cancelEvs()

	d := newTestDriver(t, &fakeSearcher{}, WithPublisher(bus), WithSession("ss-1"))
	ch, cancel := d.Subscribe()
	defer cancel()

	if first := <-ch; !first.IsIdle() {
		t.Fatalf("first outcome state = %q, want idle", first.State)
	}
	if err := d.Retrieve(context.Background(), options("test")); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	out := waitOutcome(t, ch, settled)
	if !out.HasSucceeded() {
		t.Fatalf("outcome = %q (%d %s)", out.State, out.StatusCode, out.Message)
	}
	if out.Payload.Result.Objects[0].ID != "hit-test" {
		t.Errorf("unexpected hits %+v", out.Payload.Result.Objects)
	}
	if len(out.Payload.Filters) != 1 || out.Payload.Filters[0].Name != "author" {
		t.Errorf("filters = %+v", out.Payload.Filters)
	}
	if out.Options.Query != "test" || out.StatusCode != 200 {
		t.Errorf("outcome options/status = %s/%d", out.Options, out.StatusCode)
	}

	select {
	case data := <-evs:
		ev, err := events.DecodeSearchPerformed(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Search.SessionID != "ss-1" || ev.Search.Query != "test" || ev.Search.Returned != 1 {
			t.Errorf("event = %+v", ev.Search)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no search event published")
	}
	select {
	case data := <-evs:
		t.Errorf("second event published: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDriver_IdenticalOptionsFetchOnce(t *testing.T) {
	s := &fakeSearcher{}
	d := newTestDriver(t, s)
	ch, cancel := d.Subscribe()
	defer cancel()

	ctx := context.Background()
	d.Retrieve(ctx, options("test"))
	waitOutcome(t, ch, settled)

	same := options("test")
	same.Filters = []model.Filter{}
	for i := 0; i < 3; i++ {
		if err := d.Retrieve(ctx, same); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.searchCount(); got != 1 {
		t.Errorf("searches = %d, want 1", got)
	}
	if !d.Current().HasSucceeded() {
		t.Errorf("outcome replaced: %q", d.Current().State)
	}
}

func TestDriver_StaleResponseDiscarded(t *testing.T) {
	s := &fakeSearcher{}
	gateA := s.gate("a")
	gateB := s.gate("b")
	m := metrics.New(prometheus.NewRegistry())
	d := newTestDriver(t, s, WithMetrics(m))
	ch, cancel := d.Subscribe()
	defer cancel()

	ctx := context.Background()
	d.Retrieve(ctx, options("a"))
	d.Retrieve(ctx, options("b"))

	close(gateB)
	out := waitOutcome(t, ch, settled)
	if !out.HasSucceeded() || out.Options.Query != "b" {
		t.Fatalf("outcome = %q for %q, want success for b", out.State, out.Options.Query)
	}

	close(gateA)
	waitCounter(t, m.StaleDiscards, 1)
	select {
	case o := <-ch:
		t.Fatalf("stale response rendered: %q for %q", o.State, o.Options.Query)
	default:
	}
	if got := d.Current().Options.Query; got != "b" {
		t.Errorf("current outcome is for %q, want b", got)
	}
}

func TestDriver_FailureMapping(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"APIError", &client.APIError{StatusCode: 404, Message: "scope not found"}, 404, "scope not found"},
		{"WrappedAPIError", fmt.Errorf("searching: %w", &client.APIError{StatusCode: 500, Message: "boom"}), 500, "boom"},
		{"Transport", errors.New("performing request: connection refused"), 0, "performing request: connection refused"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := newTestDriver(t, &fakeSearcher{err: tc.err})
			ch, cancel := d.Subscribe()
			defer cancel()

			d.Retrieve(context.Background(), options("x"))
			out := waitOutcome(t, ch, settled)
			if !out.HasFailed() {
				t.Fatalf("state = %q, want failure", out.State)
			}
			if out.StatusCode != tc.wantCode || out.Message != tc.wantMsg {
				t.Errorf("got %d %q, want %d %q", out.StatusCode, out.Message, tc.wantCode, tc.wantMsg)
			}
			if out.Payload != nil {
				t.Error("failure carries a payload")
			}
		})
	}
}

func TestDriver_InvalidOptionsFailWithoutFetching(t *testing.T) {
	s := &fakeSearcher{}
	d := newTestDriver(t, s)
	ch, cancel := d.Subscribe()
	defer cancel()

	bad := options("x").WithPage(0)
	d.Retrieve(context.Background(), bad)
	out := waitOutcome(t, ch, settled)
	if !out.HasFailed() || out.StatusCode != 400 {
		t.Errorf("outcome = %q %d, want failure 400", out.State, out.StatusCode)
	}
	if s.searchCount() != 0 {
		t.Errorf("searcher called for invalid options")
	}
}

func TestDriver_RetryAfterFailure(t *testing.T) {
	s := &fakeSearcher{err: &client.APIError{StatusCode: 503, Message: "busy"}}
	d := newTestDriver(t, s)
	ch, cancel := d.Subscribe()
	defer cancel()

	ctx := context.Background()
	d.Retrieve(ctx, options("x"))
	waitOutcome(t, ch, settled)

	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()

	// Re-submitting identical options after a failure is a user retry.
	d.Retrieve(ctx, options("x"))
	out := waitOutcome(t, ch, settled)
	if !out.HasSucceeded() {
		t.Fatalf("retry outcome = %q", out.State)
	}
	if got := s.searchCount(); got != 2 {
		t.Errorf("searches = %d, want 2", got)
	}
}

func TestDriver_Refresh(t *testing.T) {
	s := &fakeSearcher{}
	d := newTestDriver(t, s)
	ctx := context.Background()

	if err := d.Refresh(ctx); !errors.Is(err, ErrNothingToRefresh) {
		t.Fatalf("Refresh before Retrieve err = %v", err)
	}

	ch, cancel := d.Subscribe()
	defer cancel()
	d.Retrieve(ctx, options("x"))
	waitOutcome(t, ch, settled)

	if err := d.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	waitOutcome(t, ch, settled)
	if got := s.searchCount(); got != 2 {
		t.Errorf("searches = %d, want 2", got)
	}
}

func TestDriver_EmptyResultPublishesNothing(t *testing.T) {
	bus := events.NewLocalBus()
	defer bus.Close()
	evs, cancelEvs, _ := bus.Subscribe(events.TopicAll)
	defer cancelEvs()

	d := newTestDriver(t, &fakeSearcher{empty: true}, WithPublisher(bus))
	ch, cancel := d.Subscribe()
	defer cancel()

	d.Retrieve(context.Background(), options("nothing"))
	out := waitOutcome(t, ch, settled)
	if !out.HasSucceeded() || !out.Payload.Result.IsEmpty() {
		t.Fatalf("outcome = %q", out.State)
	}
	select {
	case data := <-evs:
		t.Errorf("event published for empty result: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDriver_ConfigErrorIsNotFatal(t *testing.T) {
	d := newTestDriver(t, &fakeSearcher{configErr: errors.New("no config")})
	ch, cancel := d.Subscribe()
	defer cancel()

	d.Retrieve(context.Background(), options("x"))
	out := waitOutcome(t, ch, settled)
	if !out.HasSucceeded() {
		t.Fatalf("outcome = %q", out.State)
	}
	if out.Payload.Filters != nil {
		t.Errorf("filters = %+v, want none", out.Payload.Filters)
	}
}

func TestDriver_SharedGroupIssuesOneRequest(t *testing.T) {
	s := &fakeSearcher{}
	gate := s.gate("same")
	g := &Group{}
	m := metrics.New(prometheus.NewRegistry())
	d1 := newTestDriver(t, s, WithGroup(g), WithMetrics(m))
	d2 := newTestDriver(t, s, WithGroup(g), WithMetrics(m))
	ch1, c1 := d1.Subscribe()
	defer c1()
	ch2, c2 := d2.Subscribe()
	defer c2()

	ctx := context.Background()
	d1.Retrieve(ctx, options("same"))
	d2.Retrieve(ctx, options("same").WithPaginationID("other"))

	// Let both callers join the in-flight request before releasing it.
	waitWaiting(t, g, options("same").RequestKey(), 2)
	close(gate)

	o1 := waitOutcome(t, ch1, settled)
	o2 := waitOutcome(t, ch2, settled)
	if !o1.HasSucceeded() || !o2.HasSucceeded() {
		t.Fatalf("outcomes = %q / %q", o1.State, o2.State)
	}
	if o2.Options.Pagination.ID != "other" {
		t.Errorf("second outcome pagination id = %q", o2.Options.Pagination.ID)
	}
	if got := s.searchCount(); got != 1 {
		t.Errorf("searches = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.FetchesShared); got != 2 {
		t.Errorf("shared = %v, want 2", got)
	}
}

func TestDriver_ClosingOneListKeepsSharedRequest(t *testing.T) {
	s := &fakeSearcher{}
	gate := s.gate("same")
	g := &Group{}
	d1 := New(s, WithGroup(g))
	d2 := newTestDriver(t, s, WithGroup(g))
	ch2, c2 := d2.Subscribe()
	defer c2()

	ctx := context.Background()
	d1.Retrieve(ctx, options("same"))
	d2.Retrieve(ctx, options("same").WithPaginationID("other"))

	key := options("same").RequestKey()
	waitWaiting(t, g, key, 2)
	d1.Close()
	waitWaiting(t, g, key, 1)
	close(gate)

	out := waitOutcome(t, ch2, settled)
	if !out.HasSucceeded() {
		t.Fatalf("outcome = %q (%d %s), want success", out.State, out.StatusCode, out.Message)
	}
	if len(out.Payload.Result.Objects) != 1 || out.Payload.Result.Objects[0].ID != "hit-same" {
		t.Errorf("objects = %+v", out.Payload.Result.Objects)
	}
	if got := s.searchCount(); got != 1 {
		t.Errorf("searches = %d, want 1", got)
	}
}

// waitWaiting blocks until n drivers wait on key in g.
func waitWaiting(t *testing.T, g *Group, key string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for g.waiting(key) != n {
		if time.Now().After(deadline) {
			t.Fatalf("waiting(%q) = %d, want %d", key, g.waiting(key), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDriver_Run(t *testing.T) {
	s := &fakeSearcher{}
	d := newTestDriver(t, s)
	ch, cancel := d.Subscribe()
	defer cancel()

	in := make(chan model.PaginatedSearchOptions)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), in) }()

	in <- options("one")
	waitOutcome(t, ch, func(o Outcome) bool { return o.HasSucceeded() && o.Options.Query == "one" })
	in <- options("two")
	waitOutcome(t, ch, func(o Outcome) bool { return o.HasSucceeded() && o.Options.Query == "two" })
	close(in)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input closed")
	}
}

func TestDriver_RunStopsOnContext(t *testing.T) {
	d := newTestDriver(t, &fakeSearcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx, make(chan model.PaginatedSearchOptions)); !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v", err)
	}
}

func TestDriver_CloseAbandonsInFlight(t *testing.T) {
	s := &fakeSearcher{}
	s.gate("slow")
	d := New(s)
	ch, _ := d.Subscribe()

	d.Retrieve(context.Background(), options("slow"))
	waitOutcome(t, ch, func(o Outcome) bool { return o.IsLoading() })

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on in-flight fetch")
	}

	for range ch {
	}
	if err := d.Retrieve(context.Background(), options("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Retrieve after Close err = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDriver_RetrieveCanceledContext(t *testing.T) {
	s := &fakeSearcher{}
	d := newTestDriver(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Retrieve(ctx, options("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if !d.Current().IsIdle() {
		t.Errorf("state = %q, want idle", d.Current().State)
	}
}

func TestFailure(t *testing.T) {
	ve := &model.ValidationError{Errors: []model.FieldError{{Field: "pagination.page_size", Message: "must be positive"}}}
	for _, tc := range []struct {
		err      error
		wantCode int
	}{
		{&client.APIError{StatusCode: 422, Message: "x"}, 422},
		{ve, 400},
		{context.Canceled, 0},
		{context.DeadlineExceeded, 0},
	} {
		if code, _ := Failure(tc.err); code != tc.wantCode {
			t.Errorf("Failure(%v) code = %d, want %d", tc.err, code, tc.wantCode)
		}
	}
}
