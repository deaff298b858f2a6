package search

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/params"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProvider serves search configs keyed by configuration name.
type fakeProvider struct {
	mu      sync.Mutex
	configs map[string]*model.SearchConfig
	err     error
	calls   int
}

func (p *fakeProvider) SearchConfig(_ context.Context, configuration, scope string) (*model.SearchConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	cfg, ok := p.configs[configuration]
	if !ok {
		return &model.SearchConfig{Configuration: configuration, Scope: scope}, nil
	}
	return cfg, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func sortConfig(name string, fields ...string) *model.SearchConfig {
	cfg := &model.SearchConfig{Configuration: name}
	for _, f := range fields {
		cfg.SortOptions = append(cfg.SortOptions, model.SortOption{Field: f, Direction: model.SortAsc})
	}
	return cfg
}

func newTestService(t *testing.T, raw string, provider ConfigProvider, opts ...Option) (*Service, *params.Adapter) {
	t.Helper()
	a, err := params.New(raw)
	if err != nil {
		t.Fatalf("params.New(%q): %v", raw, err)
	}
	s := New(a, provider, opts...)
	t.Cleanup(func() {
		s.Close()
		a.Close()
	})
	return s, a
}

func subscribe(t *testing.T, s *Service, id string) <-chan model.PaginatedSearchOptions {
	t.Helper()
	ch, cancel, err := s.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe(%q): %v", id, err)
	}
	t.Cleanup(cancel)
	return ch
}

func recv(t *testing.T, ch <-chan model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	t.Helper()
	select {
	case o, ok := <-ch:
		if !ok {
			t.Fatal("options stream closed unexpectedly")
		}
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for merged options")
	}
	return model.PaginatedSearchOptions{}
}

// waitFor reads from ch until pred holds for a received value.
func waitFor(t *testing.T, ch <-chan model.PaginatedSearchOptions, pred func(model.PaginatedSearchOptions) bool) model.PaginatedSearchOptions {
	t.Helper()
	deadline := time.After(2 * time.Second)
	var last model.PaginatedSearchOptions
	for {
		select {
		case o, ok := <-ch:
			if !ok {
				t.Fatalf("options stream closed; last value %s", last)
			}
			if pred(o) {
				return o
			}
			last = o
		case <-deadline:
			t.Fatalf("timed out; last value %s", last)
		}
	}
}

func expectQuiet(t *testing.T, ch <-chan model.PaginatedSearchOptions) {
	t.Helper()
	select {
	case o := <-ch:
		t.Fatalf("unexpected emission %s", o)
	case <-time.After(75 * time.Millisecond):
	}
}

func waitClosed(t *testing.T, ch <-chan model.PaginatedSearchOptions) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestService_QueryScopeThenPage(t *testing.T) {
	s, a := newTestService(t, "/search?query=test&scope=S1", nil)
	ch := subscribe(t, s, DefaultPaginationID)

	first := recv(t, ch)
	if first.Query != "test" || first.Scope != "S1" || first.Pagination.CurrentPage != 1 {
		t.Fatalf("unexpected first value %s", first)
	}
	if first.Pagination.ID != DefaultPaginationID {
		t.Errorf("pagination id = %q", first.Pagination.ID)
	}

	a.Navigate(url.Values{"spc.page": {"2"}})
	got := recv(t, ch)
	want := first.WithPage(2)
	if diff := model.Diff(want, got); diff != "" {
		t.Errorf("page change altered other fields (-want +got):\n%s", diff)
	}
}

func TestService_SortFallbackOnConfigurationSwitch(t *testing.T) {
	p := &fakeProvider{configs: map[string]*model.SearchConfig{
		"A": sortConfig("A", "title", "date"),
		"B": sortConfig("B", "date", "relevance"),
	}}
	s, a := newTestService(t, "/search?configuration=A&spc.sort=title,ASC", p)
	ch := subscribe(t, s, DefaultPaginationID)

	if got := recv(t, ch); got.Sort.Field != "title" {
		t.Fatalf("sort = %q, want title under configuration A", got.Sort.Field)
	}

	a.Navigate(url.Values{"configuration": {"B"}})
	got := waitFor(t, ch, func(o model.PaginatedSearchOptions) bool { return o.Configuration == "B" })
	if got.Sort.Field != "date" {
		t.Errorf("sort = %q, want fallback to date", got.Sort.Field)
	}
}

func TestService_SortFallbackOnStart(t *testing.T) {
	p := &fakeProvider{configs: map[string]*model.SearchConfig{
		"default": sortConfig("default", "dc.title"),
	}}
	s, _ := newTestService(t, "/search", p)
	ch := subscribe(t, s, DefaultPaginationID)

	if got := recv(t, ch); got.Sort.Field != "dc.title" {
		t.Errorf("sort = %q, want dc.title", got.Sort.Field)
	}
}

func TestService_ConfigFetchedOncePerConfiguration(t *testing.T) {
	p := &fakeProvider{configs: map[string]*model.SearchConfig{
		"default": sortConfig("default", "score"),
	}}
	s, a := newTestService(t, "/search", p)
	ch := subscribe(t, s, DefaultPaginationID)
	recv(t, ch)

	a.Navigate(url.Values{"spc.page": {"2"}})
	waitFor(t, ch, func(o model.PaginatedSearchOptions) bool { return o.Pagination.CurrentPage == 2 })
	a.Navigate(url.Values{"query": {"x"}})
	waitFor(t, ch, func(o model.PaginatedSearchOptions) bool { return o.Query == "x" })
	if got := p.callCount(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}

	a.Navigate(url.Values{"scope": {"S9"}})
	waitFor(t, ch, func(o model.PaginatedSearchOptions) bool { return o.Scope == "S9" })
	if got := p.callCount(); got != 2 {
		t.Errorf("provider calls = %d, want 2 after scope change", got)
	}
}

func TestService_ProviderErrorKeepsSort(t *testing.T) {
	p := &fakeProvider{err: errors.New("unavailable")}
	s, _ := newTestService(t, "/search?spc.sort=dc.title,DESC", p)
	ch := subscribe(t, s, DefaultPaginationID)

	got := recv(t, ch)
	want := model.SortOptions{Field: "dc.title", Direction: model.SortDesc}
	if got.Sort != want {
		t.Errorf("sort = %+v, want %+v", got.Sort, want)
	}
}

func TestService_PaginationIDIsolation(t *testing.T) {
	s, a := newTestService(t, "/search?query=test", nil)
	x := subscribe(t, s, "X")
	y := subscribe(t, s, "Y")
	recv(t, x)
	yFirst := recv(t, y)

	a.Navigate(url.Values{"X.page": {"3"}, "X.rpp": {"50"}, "X.sort": {"dc.title,ASC"}})
	gotX := waitFor(t, x, func(o model.PaginatedSearchOptions) bool {
		return o.Pagination.CurrentPage == 3 && o.Pagination.PageSize == 50 && o.Sort.Field == "dc.title"
	})
	if gotX.Pagination.ID != "X" {
		t.Errorf("X pagination id = %q", gotX.Pagination.ID)
	}

	expectQuiet(t, y)
	cur, err := s.Current("Y")
	if err != nil {
		t.Fatalf("Current(Y): %v", err)
	}
	if diff := model.Diff(yFirst, cur); diff != "" {
		t.Errorf("Y changed by X update (-want +got):\n%s", diff)
	}
}

func TestService_NoEmissionForUnrelatedChanges(t *testing.T) {
	s, a := newTestService(t, "/search?query=test", nil)
	ch := subscribe(t, s, DefaultPaginationID)
	recv(t, ch)

	a.Navigate(url.Values{"unrelated": {"1"}})
	a.Navigate(url.Values{"other.page": {"4"}})
	a.Navigate(url.Values{"spc.page": {"1"}}) // equals the default
	expectQuiet(t, ch)
}

func TestService_DecodeErrorsUseDefaults(t *testing.T) {
	s, _ := newTestService(t, "/search?spc.page=abc&spc.rpp=-5&spc.sort=%2CDESC&dsoType=bogus&view=table", nil)
	got := recv(t, subscribe(t, s, DefaultPaginationID))

	d := DefaultOptions()
	if got.Pagination.CurrentPage != 1 || got.Pagination.PageSize != d.Pagination.PageSize {
		t.Errorf("pagination = %+v", got.Pagination)
	}
	if got.Sort != d.Sort {
		t.Errorf("sort = %+v, want default %+v", got.Sort, d.Sort)
	}
	if got.DSOType != "" || got.ViewMode != model.ViewModeList {
		t.Errorf("dsoType = %q view = %q", got.DSOType, got.ViewMode)
	}
}

func TestService_Filters(t *testing.T) {
	s, a := newTestService(t, "/search?f.author=Smith%2C+J.%2Cequals&f.subject=Physics%2Cbogus", nil)
	ch := subscribe(t, s, DefaultPaginationID)

	want := []model.Filter{
		{Field: "author", Value: "Smith, J.", Operator: model.OperatorEquals},
		{Field: "subject", Value: "Physics,bogus", Operator: model.OperatorEquals},
	}
	if diff := cmp.Diff(want, recv(t, ch).Filters); diff != "" {
		t.Fatalf("filters mismatch (-want +got):\n%s", diff)
	}

	a.Navigate(url.Values{"f.author": nil, "f.subject": nil})
	got := waitFor(t, ch, func(o model.PaginatedSearchOptions) bool { return len(o.Filters) == 0 })
	if got.Query != "" {
		t.Errorf("query = %q", got.Query)
	}
}

func TestService_EventualConsistency(t *testing.T) {
	s, a := newTestService(t, "/search", nil)
	ch := subscribe(t, s, DefaultPaginationID)
	recv(t, ch)

	for _, u := range []url.Values{
		{"query": {"a"}},
		{"spc.page": {"2"}},
		{"query": {"b"}, "scope": {"S1"}},
		{"spc.page": {"5"}},
		{"f.author": {"X,equals"}},
		{"query": {"c"}},
		{"spc.page": {"3"}},
		{"dsoType": {"item"}},
	} {
		a.Navigate(u)
	}

	want := DefaultOptions()
	want.Query = "c"
	want.Scope = "S1"
	want.Pagination.CurrentPage = 3
	want.DSOType = model.DSOTypeItem
	want.Filters = []model.Filter{{Field: "author", Value: "X", Operator: model.OperatorEquals}}

	waitFor(t, ch, func(o model.PaginatedSearchOptions) bool { return model.Equivalent(o, want) })
}

func TestService_Reassign(t *testing.T) {
	s, a := newTestService(t, "/search?old.page=2&new.page=4", nil)
	oldCh, _, err := s.Subscribe("old")
	if err != nil {
		t.Fatal(err)
	}
	recv(t, oldCh)

	newCh, cancel, err := s.Reassign("old", "new")
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	defer cancel()
	waitClosed(t, oldCh)

	got := recv(t, newCh)
	if got.Pagination.ID != "new" || got.Pagination.CurrentPage != 4 {
		t.Errorf("reassigned options = %s", got)
	}
	if ids := s.PaginationIDs(); !cmp.Equal(ids, []string{"new"}) {
		t.Errorf("PaginationIDs = %v", ids)
	}

	// The old id no longer listens.
	a.Navigate(url.Values{"old.page": {"9"}})
	if _, err := s.Current("old"); !errors.Is(err, ErrUnknownPaginationID) {
		t.Errorf("Current(old) err = %v", err)
	}

	if _, _, err := s.Reassign("missing", "other"); !errors.Is(err, ErrUnknownPaginationID) {
		t.Errorf("Reassign(missing) err = %v", err)
	}
}

func TestService_RetireAndClose(t *testing.T) {
	s, _ := newTestService(t, "/search", nil)
	a1, _, _ := s.Subscribe("a")
	b1, _, _ := s.Subscribe("b")
	recv(t, a1)
	recv(t, b1)

	if err := s.Retire("a"); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	waitClosed(t, a1)
	if err := s.Retire("a"); !errors.Is(err, ErrUnknownPaginationID) {
		t.Errorf("second Retire err = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitClosed(t, b1)
	if _, _, err := s.Subscribe("c"); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close err = %v", err)
	}
	if len(s.PaginationIDs()) != 0 {
		t.Errorf("registry not empty: %v", s.PaginationIDs())
	}
}

func TestService_SharedNodePerID(t *testing.T) {
	s, a := newTestService(t, "/search", nil)
	c1 := subscribe(t, s, "list")
	c2 := subscribe(t, s, "list")
	recv(t, c1)
	recv(t, c2)
	if ids := s.PaginationIDs(); len(ids) != 1 {
		t.Fatalf("PaginationIDs = %v", ids)
	}

	a.Navigate(url.Values{"query": {"both"}})
	waitFor(t, c1, func(o model.PaginatedSearchOptions) bool { return o.Query == "both" })
	waitFor(t, c2, func(o model.PaginatedSearchOptions) bool { return o.Query == "both" })
}

func TestService_InvalidPaginationID(t *testing.T) {
	s, _ := newTestService(t, "/search", nil)
	for _, id := range []string{"", "a.b", "x=y"} {
		_, _, err := s.Subscribe(id)
		var ve *model.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Subscribe(%q) err = %v, want ValidationError", id, err)
		}
	}
}

func TestService_AdapterCloseEndsStreams(t *testing.T) {
	a, err := params.New("/search")
	if err != nil {
		t.Fatal(err)
	}
	s := New(a, nil)
	defer s.Close()

	ch, cancel, err := s.Subscribe("spc")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	recv(t, ch)
	a.Close()
	waitClosed(t, ch)
}

func TestService_WithDefaults(t *testing.T) {
	s, _ := newTestService(t, "/search", nil, WithDefaults(model.PaginatedSearchOptions{
		SearchOptions: model.SearchOptions{Scope: "C1", Configuration: "browse"},
		Pagination:    model.Pagination{PageSize: 25},
	}))
	got := recv(t, subscribe(t, s, "spc"))
	if got.Scope != "C1" || got.Configuration != "browse" || got.Pagination.PageSize != 25 {
		t.Errorf("defaults not applied: %s", got)
	}
	if got.Pagination.CurrentPage != 1 || got.ViewMode != model.ViewModeList {
		t.Errorf("package defaults lost: %s", got)
	}
}

func TestService_ClearedFiltersStayCleared(t *testing.T) {
	defaults := model.PaginatedSearchOptions{
		SearchOptions: model.SearchOptions{
			Filters: []model.Filter{{Field: "subject", Value: "Physics", Operator: model.OperatorEquals}},
		},
	}
	type step struct {
		nav  url.Values
		want []string
	}
	tests := []struct {
		name  string
		url   string
		first []string
		steps []step
	}{
		{"defaults seed the list", "/search", []string{"subject"}, nil},
		{"route filters replace defaults", "/search?f.author=Doe%2Cequals", []string{"author"}, nil},
		{"clearing route filters", "/search?f.author=Doe%2Cequals", []string{"author"}, []step{
			{url.Values{"f.author": nil}, nil},
		}},
		{"add then clear", "/search", []string{"subject"}, []step{
			{url.Values{"f.author": {"Doe,equals"}}, []string{"author"}},
			{url.Values{"f.author": nil}, nil},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, a := newTestService(t, tt.url, nil, WithDefaults(defaults))
			ch := subscribe(t, s, "spc")
			if got := filterFields(recv(t, ch)); !slices.Equal(got, tt.first) {
				t.Fatalf("initial filters = %v, want %v", got, tt.first)
			}
			for _, st := range tt.steps {
				a.Navigate(st.nav)
				waitFor(t, ch, func(o model.PaginatedSearchOptions) bool {
					return slices.Equal(filterFields(o), st.want)
				})
			}
		})
	}
}

func filterFields(o model.PaginatedSearchOptions) []string {
	var fields []string
	for _, f := range o.Filters {
		fields = append(fields, f.Field)
	}
	return fields
}

func TestService_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s, a := newTestService(t, "/search", nil, WithMetrics(m))
	ch := subscribe(t, s, "spc")
	subscribe(t, s, "other")
	recv(t, ch)

	if got := testutil.ToFloat64(m.ActiveLists); got != 2 {
		t.Errorf("active lists = %v, want 2", got)
	}
	a.Navigate(url.Values{"query": {"x"}})
	waitFor(t, ch, func(o model.PaginatedSearchOptions) bool { return o.Query == "x" })
	if got := testutil.ToFloat64(m.MergedEmissions); got < 1 {
		t.Errorf("emissions = %v, want at least 1", got)
	}
	s.Retire("other")
	if got := testutil.ToFloat64(m.ActiveLists); got != 1 {
		t.Errorf("active lists = %v after retire, want 1", got)
	}
}
