package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alfredjeanlab/discovery/internal/client"
	"github.com/alfredjeanlab/discovery/internal/events"
	"github.com/alfredjeanlab/discovery/internal/idgen"
	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/params"
	"github.com/alfredjeanlab/discovery/internal/presence"
	"github.com/alfredjeanlab/discovery/internal/retrieve"
	"github.com/alfredjeanlab/discovery/internal/search"
	"github.com/alfredjeanlab/discovery/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrSessionNotFound is returned for ids without a live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrListNotFound is returned for pagination ids not attached to a session.
	ErrListNotFound = errors.New("list not found")
	// ErrServerClosed is returned by CreateSession after Close.
	ErrServerClosed = errors.New("server closed")
)

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// DiscoveryServer hosts one search pipeline per session. Sessions share the
// API client and a single-flight group, so identical searches issued by
// different sessions reach the API once.
type DiscoveryServer struct {
	client    client.DiscoveryClient
	configs   search.ConfigProvider
	publisher events.Publisher
	recorder  *stats.Recorder
	Presence  *presence.Tracker
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	group     retrieve.Group

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a DiscoveryServer.
type Option func(*DiscoveryServer)

// WithRecorder enables GET /v1/stats/queries.
func WithRecorder(r *stats.Recorder) Option {
	return func(s *DiscoveryServer) { s.recorder = r }
}

// WithMetrics sets the collectors and the gatherer served at /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *DiscoveryServer) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithConfigProvider sets where the sort fallback of every session reads
// the search configuration from. It defaults to the API client. Retrievals
// always fetch their filter configuration through the API client.
func WithConfigProvider(p search.ConfigProvider) Option {
	return func(s *DiscoveryServer) { s.configs = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *DiscoveryServer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewDiscoveryServer returns a server that searches through c and
// publishes session and search events to p.
func NewDiscoveryServer(c client.DiscoveryClient, p events.Publisher, opts ...Option) *DiscoveryServer {
	s := &DiscoveryServer{
		client:    c,
		publisher: p,
		Presence:  presence.New(),
		logger:    slog.Default(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = &events.NoopPublisher{}
	}
	if s.configs == nil {
		s.configs = s.client
	}
	s.metrics = metrics.OrDiscard(s.metrics)
	if s.gatherer == nil {
		s.gatherer = prometheus.NewRegistry()
	}
	s.Presence.SetLogger(s.logger)
	return s
}

// CreateSessionRequest opens a session on a page URL. Lists are attached
// right away.
type CreateSessionRequest struct {
	URL        string   `json:"url"`
	Variant    string   `json:"variant,omitempty"`
	EntityType string   `json:"entity_type,omitempty"`
	Lists      []string `json:"lists,omitempty"`
}

// CreateSession starts a pipeline for req.URL.
func (s *DiscoveryServer) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	variant, err := search.VariantByName(req.Variant, req.EntityType)
	if err != nil {
		return nil, inputError(err.Error())
	}
	raw := req.URL
	if raw == "" {
		raw = "/search"
	}
	adapter, err := params.New(raw)
	if err != nil {
		return nil, inputError(fmt.Sprintf("invalid url: %v", err))
	}

	id, err := idgen.SessionID()
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("session_id", id)
	adapter.SetLogger(logger)
	svc := search.New(adapter, s.configs,
		search.WithVariant(variant),
		search.WithLogger(logger),
		search.WithMetrics(s.metrics),
	)
	sess := newSession(id, variant.Name(), adapter, svc, sessionDeps{
		searcher:  s.client,
		group:     &s.group,
		publisher: s.publisher,
		logger:    logger,
		metrics:   s.metrics,
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sess.close()
		return nil, ErrServerClosed
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	s.metrics.Sessions.Inc()
	s.Presence.Touch(id, "create")

	for _, pid := range req.Lists {
		if err := sess.Attach(pid); err != nil {
			_ = s.CloseSession(ctx, id, "rejected")
			return nil, err
		}
	}

	if err := s.publisher.Publish(ctx, events.TopicSessionOpened, events.SessionOpened{
		SessionID: id,
		URL:       adapter.URL(),
		Variant:   variant.Name(),
	}); err != nil {
		logger.Warn("failed to publish event", "topic", events.TopicSessionOpened, "error", err)
	}
	logger.Info("session opened", "url", adapter.URL(), "variant", variant.Name())
	return sess, nil
}

// Session returns the live session id and marks it active.
func (s *DiscoveryServer) Session(id, action string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	if action != "" {
		s.Presence.Touch(id, action)
	}
	return sess, nil
}

// SessionIDs returns the ids of all live sessions, sorted.
func (s *DiscoveryServer) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.sessions))
}

// CloseSession tears the session down: every driver is closed, the merge
// nodes are retired and open streams end.
func (s *DiscoveryServer) CloseSession(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	sess.close()
	s.Presence.Remove(id)
	s.metrics.Sessions.Dec()

	if err := s.publisher.Publish(ctx, events.TopicSessionClosed, events.SessionClosed{
		SessionID: id,
		Reason:    reason,
	}); err != nil {
		s.logger.Warn("failed to publish event", "topic", events.TopicSessionClosed, "error", err)
	}
	s.logger.Info("session closed", "session_id", id, "reason", reason)
	return nil
}

// StartReaper closes sessions that have been idle for longer than idle.
// Sessions with an open event stream are never reaped.
func (s *DiscoveryServer) StartReaper(idle, sweep time.Duration) {
	s.Presence.StartReaper(&presence.ReaperConfig{
		IdleThreshold: idle,
		SweepInterval: sweep,
		OnIdle: func(id string) {
			if err := s.CloseSession(context.Background(), id, "idle"); err != nil && !errors.Is(err, ErrSessionNotFound) {
				s.logger.Warn("failed to reap session", "session_id", id, "error", err)
			}
		},
	})
}

// Close stops the reaper and tears down every session.
func (s *DiscoveryServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ids := slices.Collect(maps.Keys(s.sessions))
	s.mu.Unlock()

	s.Presence.Stop()
	for _, id := range ids {
		_ = s.CloseSession(context.Background(), id, "shutdown")
	}
	return nil
}
