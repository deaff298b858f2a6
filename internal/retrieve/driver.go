// Package retrieve drives result retrieval for one result list: it keeps at
// most one request per distinct options value in flight, drops responses
// that were overtaken by newer options, and republishes the outcome.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/discovery/internal/client"
	"github.com/alfredjeanlab/discovery/internal/events"
	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/stream"
)

// Outcome is the retrieval state published to views.
type Outcome = model.Outcome[*model.Retrieved]

var (
	// ErrClosed is returned by operations on a closed Driver.
	ErrClosed = errors.New("retrieval driver closed")
	// ErrNothingToRefresh is returned by Refresh before the first Retrieve.
	ErrNothingToRefresh = errors.New("nothing to refresh")
)

// Searcher fetches hits and the filter configuration that applies to them.
// client.DiscoveryClient satisfies it.
type Searcher interface {
	Search(ctx context.Context, opts model.PaginatedSearchOptions) (*model.SearchResult, error)
	SearchConfig(ctx context.Context, configuration, scope string) (*model.SearchConfig, error)
}

// Driver owns the outcome of one result list.
type Driver struct {
	searcher  Searcher
	publisher events.Publisher
	group     *Group
	session   string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	gen     uint64
	latest  model.PaginatedSearchOptions
	issued  bool
	failed  bool
	closed  bool
	outcome *stream.Value[Outcome]
}

// Option configures a Driver.
type Option func(*Driver)

// WithPublisher sets where search-performed events go. The default drops them.
func WithPublisher(p events.Publisher) Option {
	return func(d *Driver) {
		if p != nil {
			d.publisher = p
		}
	}
}

// WithGroup shares one Group between drivers, so lists showing the same
// search issue one request.
func WithGroup(g *Group) Option {
	return func(d *Driver) {
		if g != nil {
			d.group = g
		}
	}
}

// WithSession tags published events with a session id.
func WithSession(id string) Option {
	return func(d *Driver) { d.session = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates an idle Driver.
func New(searcher Searcher, opts ...Option) *Driver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		searcher:  searcher,
		publisher: &events.NoopPublisher{},
		group:     &Group{},
		logger:    slog.Default(),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		outcome:   stream.NewValue(Outcome{}, nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.metrics = metrics.OrDiscard(d.metrics)
	return d
}

// Retrieve makes opts the current options. If opts are equivalent to the
// latest issued options and that attempt has not failed, nothing happens.
// Otherwise a Loading outcome is published and a fetch starts in the
// background; Retrieve does not wait for it. ctx only gates the call: the
// fetch itself lives as long as the driver.
func (d *Driver) Retrieve(ctx context.Context, opts model.PaginatedSearchOptions) error {
	return d.retrieve(ctx, opts, false)
}

// Refresh re-issues the latest options even if they have not changed.
func (d *Driver) Refresh(ctx context.Context) error {
	d.mu.Lock()
	issued, latest := d.issued, d.latest
	d.mu.Unlock()
	if !issued {
		return ErrNothingToRefresh
	}
	return d.retrieve(ctx, latest, true)
}

func (d *Driver) retrieve(ctx context.Context, opts model.PaginatedSearchOptions, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	if !force && d.issued && !d.failed && model.Equivalent(d.latest, opts) {
		d.mu.Unlock()
		return nil
	}
	d.gen++
	gen := d.gen
	d.latest = opts.Clone()
	d.issued = true
	d.failed = false
	loading := model.Loading[*model.Retrieved](d.latest, d.now())
	d.outcome.Set(loading)
	d.wg.Add(1)
	d.mu.Unlock()

	d.metrics.Fetches.Inc()
	d.logger.Debug("retrieval issued", "generation", gen, "options", opts.String())
	go d.fetch(gen, loading)
	return nil
}

func (d *Driver) fetch(gen uint64, loading Outcome) {
	defer d.wg.Done()
	opts := loading.Options

	var (
		val    *model.Retrieved
		shared bool
		err    = model.ValidateOptions(opts)
	)
	if err == nil {
		val, shared, err = d.group.do(d.ctx, opts.RequestKey(), func(ctx context.Context) (*model.Retrieved, error) {
			return d.load(ctx, opts)
		})
	}
	if shared {
		d.metrics.FetchesShared.Inc()
	}

	settledAt := d.now()
	d.mu.Lock()
	if gen != d.gen || d.closed {
		d.mu.Unlock()
		d.metrics.StaleDiscards.Inc()
		d.logger.Debug("stale retrieval discarded", "generation", gen, "options", opts.String())
		return
	}
	var out Outcome
	if err != nil {
		code, msg := Failure(err)
		out = loading.Failed(code, msg, settledAt)
		d.failed = true
	} else {
		out = loading.Succeeded(val, settledAt)
	}
	d.outcome.Set(out)
	d.mu.Unlock()

	d.metrics.FetchDuration.Observe(settledAt.Sub(loading.RequestedAt).Seconds())
	if out.HasFailed() {
		d.metrics.Failures.WithLabelValues(strconv.Itoa(out.StatusCode)).Inc()
		d.logger.Warn("retrieval failed", "options", opts.String(), "status", out.StatusCode, "err", out.Message)
		return
	}
	if out.Payload.Result.IsEmpty() {
		return
	}
	ev := events.SearchPerformed{
		Search: model.NewSearchEvent(d.session, opts, out.Payload.Result, settledAt.Sub(loading.RequestedAt), settledAt),
	}
	if err := d.publisher.Publish(d.ctx, events.TopicSearchPerformed, ev); err != nil {
		d.logger.Warn("publishing search event", "err", err)
	}
}

// load fetches the hits and the filter configuration concurrently. A
// failure to fetch the filter configuration is logged and leaves Filters
// empty; only a failed search fails the retrieval.
func (d *Driver) load(ctx context.Context, opts model.PaginatedSearchOptions) (*model.Retrieved, error) {
	var (
		result *model.SearchResult
		config *model.SearchConfig
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := d.searcher.Search(gctx, opts)
		if err != nil {
			return err
		}
		if r == nil {
			r = &model.SearchResult{}
		}
		result = r
		return nil
	})
	g.Go(func() error {
		c, err := d.searcher.SearchConfig(gctx, opts.Configuration, opts.Scope)
		if err != nil {
			if gctx.Err() == nil {
				d.logger.Warn("fetching filter configuration", "configuration", opts.Configuration, "scope", opts.Scope, "err", err)
			}
			return nil
		}
		config = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &model.Retrieved{Result: result}
	if config != nil {
		out.Filters = config.Filters
	}
	return out, nil
}

// Failure maps a retrieval error onto a status code and message. API
// errors keep their status; validation errors are 400; everything else,
// including cancellation and transport errors, is status 0.
func Failure(err error) (int, string) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, apiErr.Message
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return 400, ve.Error()
	}
	return 0, err.Error()
}

// Run calls Retrieve for every value received on in until in is closed or
// ctx is done.
func (d *Driver) Run(ctx context.Context, in <-chan model.PaginatedSearchOptions) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case opts, ok := <-in:
			if !ok {
				return nil
			}
			if err := d.Retrieve(ctx, opts); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				return fmt.Errorf("retrieving %s: %w", opts.Pagination.ID, err)
			}
		}
	}
}

// Subscribe returns a stream of outcomes. The channel yields the current
// outcome first; a slow reader only sees the latest one.
func (d *Driver) Subscribe() (<-chan Outcome, func()) {
	return d.outcome.Subscribe()
}

// Current returns the latest outcome.
func (d *Driver) Current() Outcome {
	return d.outcome.Get()
}

// Close abandons in-flight fetches, waits for them to return and closes
// every outcome subscription.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.outcome.Close()
	return nil
}
