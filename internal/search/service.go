// Package search merges route parameters, construction-time defaults and
// the active variant into one PaginatedSearchOptions value per result list.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/params"
)

// Default values used when neither the route nor WithDefaults supply one.
const (
	DefaultConfiguration = "default"
	DefaultPaginationID  = "spc"
	DefaultPageSize      = 10
)

var (
	// ErrClosed is returned by operations on a closed Service.
	ErrClosed = errors.New("search service closed")
	// ErrUnknownPaginationID is returned for ids without a live merge node.
	ErrUnknownPaginationID = errors.New("unknown pagination id")
)

// ConfigProvider fetches the search configuration descriptor used for the
// sort fallback.
type ConfigProvider interface {
	SearchConfig(ctx context.Context, configuration, scope string) (*model.SearchConfig, error)
}

// DefaultOptions returns the options a list starts from when the route is
// empty.
func DefaultOptions() model.PaginatedSearchOptions {
	return model.PaginatedSearchOptions{
		SearchOptions: model.SearchOptions{
			Configuration: DefaultConfiguration,
			ViewMode:      model.ViewModeList,
		},
		Pagination: model.Pagination{ID: DefaultPaginationID, CurrentPage: 1, PageSize: DefaultPageSize},
		Sort:       model.SortOptions{Field: "score", Direction: model.SortDesc},
	}
}

// Service owns the registry of merge nodes, one per pagination id.
type Service struct {
	params   *params.Adapter
	provider ConfigProvider
	defaults model.PaginatedSearchOptions
	variant  Variant
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	nodes  map[string]*node
	closed bool
}

// Option configures a Service.
type Option func(*Service)

// WithDefaults replaces DefaultOptions. Zero fields fall back to the
// package defaults.
func WithDefaults(o model.PaginatedSearchOptions) Option {
	return func(s *Service) {
		d := DefaultOptions()
		if o.Configuration != "" {
			d.Configuration = o.Configuration
		}
		if o.ViewMode.IsValid() {
			d.ViewMode = o.ViewMode
		}
		if o.Pagination.CurrentPage > 0 {
			d.Pagination.CurrentPage = o.Pagination.CurrentPage
		}
		if o.Pagination.PageSize > 0 {
			d.Pagination.PageSize = o.Pagination.PageSize
		}
		if o.Sort.Field != "" {
			d.Sort = o.Sort
		}
		d.Scope = o.Scope
		d.Query = o.Query
		d.Filters = slices.Clone(o.Filters)
		d.FixedFilter = o.FixedFilter
		d.DSOType = o.DSOType
		s.defaults = d
	}
}

// WithVariant selects the page variant. The default is DefaultVariant.
func WithVariant(v Variant) Option {
	return func(s *Service) {
		if v != nil {
			s.variant = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service reading from adapter. provider may be nil, which
// disables the sort fallback.
func New(adapter *params.Adapter, provider ConfigProvider, opts ...Option) *Service {
	s := &Service{
		params:   adapter,
		provider: provider,
		defaults: DefaultOptions(),
		variant:  DefaultVariant{},
		logger:   slog.Default(),
		nodes:    make(map[string]*node),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = metrics.OrDiscard(s.metrics)
	s.defaults = s.variant.Defaults(s.defaults)
	return s
}

// Variant returns the variant chosen at construction.
func (s *Service) Variant() Variant { return s.variant }

// Defaults returns the options a list starts from.
func (s *Service) Defaults() model.PaginatedSearchOptions { return s.defaults.Clone() }

// Params returns the adapter the service reads from.
func (s *Service) Params() *params.Adapter { return s.params }

// Subscribe returns the merged options of the list identified by
// paginationID. The channel yields the current value first and then every
// distinct change; it is closed when the id is retired or reassigned, or
// the service is closed. The first subscription for an id starts its merge
// node.
func (s *Service) Subscribe(paginationID string) (<-chan model.PaginatedSearchOptions, func(), error) {
	n, err := s.node(paginationID)
	if err != nil {
		return nil, nil, err
	}
	<-n.ready
	ch, cancel := n.value.Subscribe()
	return ch, cancel, nil
}

// Current returns the latest merged options of a live list.
func (s *Service) Current(paginationID string) (model.PaginatedSearchOptions, error) {
	s.mu.Lock()
	n, ok := s.nodes[paginationID]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return model.PaginatedSearchOptions{}, ErrClosed
	}
	if !ok {
		return model.PaginatedSearchOptions{}, fmt.Errorf("%w: %q", ErrUnknownPaginationID, paginationID)
	}
	<-n.ready
	return n.value.Get(), nil
}

// Reassign tears down every subscription of oldID and subscribes under
// newID. Channels obtained for oldID are closed.
func (s *Service) Reassign(oldID, newID string) (<-chan model.PaginatedSearchOptions, func(), error) {
	if err := validatePaginationID(newID); err != nil {
		return nil, nil, err
	}
	if oldID == newID {
		return s.Subscribe(newID)
	}
	if err := s.Retire(oldID); err != nil {
		return nil, nil, err
	}
	s.logger.Debug("pagination id reassigned", "from", oldID, "to", newID)
	return s.Subscribe(newID)
}

// Retire stops the merge node of paginationID and closes its subscriber
// channels.
func (s *Service) Retire(paginationID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	n, ok := s.nodes[paginationID]
	if ok {
		delete(s.nodes, paginationID)
		s.metrics.ActiveLists.Set(float64(len(s.nodes)))
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPaginationID, paginationID)
	}
	n.stop()
	s.logger.Debug("pagination id retired", "pagination_id", paginationID)
	return nil
}

// Close retires every list. Later calls return ErrClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	nodes := s.nodes
	s.nodes = make(map[string]*node)
	s.metrics.ActiveLists.Set(0)
	s.mu.Unlock()

	for _, n := range nodes {
		n.stop()
	}
	return nil
}

// PaginationIDs returns the ids with a live merge node, sorted.
func (s *Service) PaginationIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.nodes))
}

func (s *Service) node(paginationID string) (*node, error) {
	if err := validatePaginationID(paginationID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n, ok := s.nodes[paginationID]; ok {
		return n, nil
	}
	n := newNode(s, paginationID)
	s.nodes[paginationID] = n
	s.metrics.ActiveLists.Set(float64(len(s.nodes)))
	go n.run()
	return n, nil
}

func validatePaginationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &model.ValidationError{Errors: []model.FieldError{{Field: "pagination_id", Message: "is required"}}}
	}
	if strings.ContainsAny(id, ".&=?") {
		return &model.ValidationError{Errors: []model.FieldError{{
			Field:   "pagination_id",
			Message: fmt.Sprintf("must not contain '.', '&', '=' or '?', got %q", id),
		}}}
	}
	return nil
}
