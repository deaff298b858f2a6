package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/discovery/internal/events"
	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/params"
	"github.com/alfredjeanlab/discovery/internal/retrieve"
	"github.com/alfredjeanlab/discovery/internal/search"
	"github.com/alfredjeanlab/discovery/internal/views"
)

// Stream topics. List topics carry the pagination id as their last segment,
// so "outcome.*" follows every list of a session.
const (
	topicRoute   = "route"
	topicOptions = "options"
	topicOutcome = "outcome"
)

// RouteEvent is streamed after every write to the session route.
type RouteEvent struct {
	URL string `json:"url"`
}

// OptionsEvent is streamed for every distinct merged options value.
type OptionsEvent struct {
	PaginationID string                       `json:"pagination_id"`
	Options      model.PaginatedSearchOptions `json:"options"`
}

// OutcomeEvent is streamed for every retrieval state change.
type OutcomeEvent struct {
	PaginationID string           `json:"pagination_id"`
	Outcome      retrieve.Outcome `json:"outcome"`
}

// SessionInfo describes a live session.
type SessionInfo struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Variant   string    `json:"variant"`
	Lists     []string  `json:"lists"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionDeps struct {
	searcher  retrieve.Searcher
	group     *retrieve.Group
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Session is one page: a parameter adapter, its merge service and one
// retrieval driver per attached result list.
type Session struct {
	ID        string
	Variant   string
	CreatedAt time.Time

	params *params.Adapter
	search *search.Service
	deps   sessionDeps
	hub    *sseHub

	mu     sync.Mutex
	lists  map[string]*list
	closed bool
}

// list pumps merged options into a driver and driver outcomes into the hub.
type list struct {
	id     string
	driver *retrieve.Driver
	panels *views.Panels
	unsub  func()
	wg     sync.WaitGroup
}

func newSession(id, variant string, adapter *params.Adapter, svc *search.Service, deps sessionDeps) *Session {
	return &Session{
		ID:        id,
		Variant:   variant,
		CreatedAt: time.Now().UTC(),
		params:    adapter,
		search:    svc,
		deps:      deps,
		hub:       newSSEHub(),
		lists:     make(map[string]*list),
	}
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	ids := slices.Sorted(maps.Keys(s.lists))
	s.mu.Unlock()
	if ids == nil {
		ids = []string{}
	}
	return SessionInfo{
		ID:        s.ID,
		URL:       s.params.URL(),
		Variant:   s.Variant,
		Lists:     ids,
		CreatedAt: s.CreatedAt,
	}
}

// URL returns the current route.
func (s *Session) URL() string { return s.params.URL() }

// Navigate applies query updates to the route and returns the new URL.
func (s *Session) Navigate(updates url.Values) string {
	u := s.params.Navigate(updates)
	s.broadcast(topicRoute, RouteEvent{URL: u})
	return u
}

// Apply runs a view intent against the current options of a list.
func (s *Session) Apply(paginationID string, in views.Intent) (string, error) {
	opts, err := s.Options(paginationID)
	if err != nil {
		return "", err
	}
	u, err := views.Apply(s.params, opts, in)
	if err != nil {
		return "", inputError(err.Error())
	}
	s.broadcast(topicRoute, RouteEvent{URL: u})
	return u, nil
}

// Attach starts a result list. Attaching a live id is a no-op.
func (s *Session) Attach(paginationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return search.ErrClosed
	}
	if _, ok := s.lists[paginationID]; ok {
		return nil
	}
	ch, unsub, err := s.search.Subscribe(paginationID)
	if err != nil {
		return err
	}
	s.lists[paginationID] = s.start(paginationID, ch, unsub)
	return nil
}

// Reassign moves a list to a new pagination id. The old driver is closed
// and a fresh one starts from the options merged for newID.
func (s *Session) Reassign(oldID, newID string) error {
	if oldID == newID {
		_, err := s.list(oldID)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return search.ErrClosed
	}
	old, ok := s.lists[oldID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrListNotFound, oldID)
	}
	if _, taken := s.lists[newID]; taken {
		return inputError(fmt.Sprintf("pagination id %q is already attached", newID))
	}
	ch, unsub, err := s.search.Reassign(oldID, newID)
	if err != nil {
		return err
	}
	delete(s.lists, oldID)
	old.stop()
	s.lists[newID] = s.start(newID, ch, unsub)
	return nil
}

// Retire detaches a list and closes its driver.
func (s *Session) Retire(paginationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[paginationID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrListNotFound, paginationID)
	}
	delete(s.lists, paginationID)
	if err := s.search.Retire(paginationID); err != nil && !errors.Is(err, search.ErrUnknownPaginationID) {
		return err
	}
	l.stop()
	return nil
}

// Options returns the merged options of a list.
func (s *Session) Options(paginationID string) (model.PaginatedSearchOptions, error) {
	if _, err := s.list(paginationID); err != nil {
		return model.PaginatedSearchOptions{}, err
	}
	return s.search.Current(paginationID)
}

// Outcome returns the latest retrieval outcome of a list.
func (s *Session) Outcome(paginationID string) (retrieve.Outcome, error) {
	l, err := s.list(paginationID)
	if err != nil {
		return retrieve.Outcome{}, err
	}
	return l.driver.Current(), nil
}

// Labels returns the applied-filter labels of a list.
func (s *Session) Labels(paginationID string) ([]views.Label, error) {
	opts, err := s.Options(paginationID)
	if err != nil {
		return nil, err
	}
	return views.FilterLabels(opts), nil
}

// Refresh re-issues the latest search of a list.
func (s *Session) Refresh(ctx context.Context, paginationID string) error {
	l, err := s.list(paginationID)
	if err != nil {
		return err
	}
	return l.driver.Refresh(ctx)
}

// Panels returns the names of the open facet panels of a list.
func (s *Session) Panels(paginationID string) ([]string, error) {
	l, err := s.list(paginationID)
	if err != nil {
		return nil, err
	}
	return l.panels.Open(), nil
}

// TogglePanel flips a facet panel and reports whether it is now open.
func (s *Session) TogglePanel(paginationID, name string) (bool, error) {
	l, err := s.list(paginationID)
	if err != nil {
		return false, err
	}
	return l.panels.Toggle(name), nil
}

func (s *Session) list(paginationID string) (*list, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, search.ErrClosed
	}
	l, ok := s.lists[paginationID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrListNotFound, paginationID)
	}
	return l, nil
}

// start wires a subscription to a new driver. Must hold s.mu.
func (s *Session) start(paginationID string, ch <-chan model.PaginatedSearchOptions, unsub func()) *list {
	l := &list{
		id:     paginationID,
		panels: views.NewPanels(nil),
		unsub:  unsub,
		driver: retrieve.New(s.deps.searcher,
			retrieve.WithPublisher(s.deps.publisher),
			retrieve.WithGroup(s.deps.group),
			retrieve.WithSession(s.ID),
			retrieve.WithLogger(s.deps.logger.With("pagination_id", paginationID)),
			retrieve.WithMetrics(s.deps.metrics),
		),
	}
	outcomes, stopOutcomes := l.driver.Subscribe()

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		for opts := range ch {
			s.broadcast(topicOptions+"."+paginationID, OptionsEvent{PaginationID: paginationID, Options: opts})
			if err := l.driver.Retrieve(context.Background(), opts); err != nil {
				if errors.Is(err, retrieve.ErrClosed) {
					return
				}
				s.deps.logger.Warn("retrieve failed", "pagination_id", paginationID, "error", err)
			}
		}
	}()
	go func() {
		defer l.wg.Done()
		defer stopOutcomes()
		for o := range outcomes {
			if o.HasSucceeded() && o.Payload != nil {
				l.panels.Sync(o.Payload.Filters)
			}
			s.broadcast(topicOutcome+"."+paginationID, OutcomeEvent{PaginationID: paginationID, Outcome: o})
		}
	}()
	return l
}

// stop closes the driver and waits for both pumps. The options channel
// must already be closed by a retire or reassign.
func (l *list) stop() {
	l.unsub()
	_ = l.driver.Close()
	l.wg.Wait()
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	lists := s.lists
	s.lists = make(map[string]*list)
	s.mu.Unlock()

	_ = s.search.Close()
	for _, l := range lists {
		l.stop()
	}
	s.params.Close()
	s.hub.close()
}

func (s *Session) broadcast(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.deps.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.hub.broadcast(topic, payload)
}
