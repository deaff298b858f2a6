package search

import (
	"context"
	"strconv"

	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/stream"
)

// node merges the parameter streams of one pagination id. Every stream is
// watched independently; a tick overlays its field onto the last merged
// value and the result is emitted only if it differs structurally.
type node struct {
	svc    *Service
	id     string
	value  *stream.Value[model.PaginatedSearchOptions]
	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	done   chan struct{}

	// config is the descriptor of configKey, refetched when configuration
	// or scope change.
	config     *model.SearchConfig
	configKey  [2]string
	haveConfig bool
}

func newNode(s *Service, id string) *node {
	ctx, cancel := context.WithCancel(context.Background())
	return &node{
		svc:    s,
		id:     id,
		value:  stream.NewValue(model.PaginatedSearchOptions{}, model.Equivalent),
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// stop cancels the node and waits for its goroutine and watchers to exit.
func (n *node) stop() {
	n.cancel()
	<-n.done
}

type watchers struct {
	query, scope, configuration, dsoType, view <-chan string
	page, pageSize, sort                       <-chan string
	filters                                    <-chan map[string][]string
}

func (n *node) watch() watchers {
	a, d := n.svc.params, n.svc.defaults
	return watchers{
		query:         a.WatchValue(n.ctx, ParamQuery, d.Query),
		scope:         a.WatchValue(n.ctx, ParamScope, d.Scope),
		configuration: a.WatchValue(n.ctx, ParamConfiguration, d.Configuration),
		dsoType:       a.WatchValue(n.ctx, ParamDSOType, string(d.DSOType)),
		view:          a.WatchValue(n.ctx, ParamView, string(d.ViewMode)),
		page:          a.WatchValue(n.ctx, ListParam(n.id, ParamPage), strconv.Itoa(d.Pagination.CurrentPage)),
		pageSize:      a.WatchValue(n.ctx, ListParam(n.id, ParamPageSize), strconv.Itoa(d.Pagination.PageSize)),
		sort:          a.WatchValue(n.ctx, ListParam(n.id, ParamSort), d.Sort.Param()),
		filters:       a.WatchPrefix(n.ctx, model.FilterParamPrefix),
	}
}

// initial reads the first value of every watcher. It returns false if any
// watcher is already closed.
func (n *node) initial(w watchers) (model.PaginatedSearchOptions, bool) {
	d := n.svc.defaults
	o := d.Clone()
	o.Pagination.ID = n.id

	var ok bool
	var raw string
	if o.Query, ok = <-w.query; !ok {
		return o, false
	}
	if o.Scope, ok = <-w.scope; !ok {
		return o, false
	}
	if o.Configuration, ok = <-w.configuration; !ok {
		return o, false
	}
	if raw, ok = <-w.dsoType; !ok {
		return o, false
	}
	o.DSOType = decodeDSOType(raw, d.DSOType)
	if raw, ok = <-w.view; !ok {
		return o, false
	}
	o.ViewMode = decodeView(raw, d.ViewMode)
	if raw, ok = <-w.page; !ok {
		return o, false
	}
	o.Pagination.CurrentPage = decodePage(raw, d.Pagination.CurrentPage)
	if raw, ok = <-w.pageSize; !ok {
		return o, false
	}
	o.Pagination.PageSize = decodePageSize(raw, d.Pagination.PageSize)
	if raw, ok = <-w.sort; !ok {
		return o, false
	}
	o.Sort = decodeSort(raw, d.Sort)
	f, ok := <-w.filters
	if !ok {
		return o, false
	}
	o.Filters = filtersOrDefault(f, d.Filters)
	return o, true
}

func filtersOrDefault(params map[string][]string, def []model.Filter) []model.Filter {
	if len(params) == 0 {
		return def
	}
	return model.FiltersFromParams(params)
}

func (n *node) run() {
	defer close(n.done)
	defer n.value.Close()
	defer n.cancel()

	w := n.watch()
	cur, ok := n.initial(w)
	if !ok {
		close(n.ready)
		return
	}
	n.value.Set(n.resolve(cur))
	close(n.ready)
	n.svc.logger.Debug("merge node started", "pagination_id", n.id, "options", n.value.Get().String())

	d := n.svc.defaults
	for {
		var raw string
		var f map[string][]string
		var ok bool
		next := cur.Clone()

		select {
		case <-n.ctx.Done():
			return
		case raw, ok = <-w.query:
			next.Query = raw
		case raw, ok = <-w.scope:
			next.Scope = raw
		case raw, ok = <-w.configuration:
			next.Configuration = raw
		case raw, ok = <-w.dsoType:
			next.DSOType = decodeDSOType(raw, d.DSOType)
		case raw, ok = <-w.view:
			next.ViewMode = decodeView(raw, d.ViewMode)
		case raw, ok = <-w.page:
			next.Pagination.CurrentPage = decodePage(raw, d.Pagination.CurrentPage)
		case raw, ok = <-w.pageSize:
			next.Pagination.PageSize = decodePageSize(raw, d.Pagination.PageSize)
		case raw, ok = <-w.sort:
			next.Sort = decodeSort(raw, d.Sort)
		case f, ok = <-w.filters:
			// Default filters only seed a list. Clearing every filter
			// later leaves none.
			next.Filters = model.FiltersFromParams(f)
		}
		if !ok {
			// The adapter was closed.
			return
		}
		cur = next

		if n.value.Set(n.resolve(cur)) {
			n.svc.metrics.MergedEmissions.Inc()
			n.svc.logger.Debug("merged options changed", "pagination_id", n.id, "options", n.value.Get().String())
		} else {
			n.svc.metrics.MergedSuppressed.Inc()
		}
	}
}

// resolve applies the variant and the sort fallback to the raw merge of
// the route parameters.
func (n *node) resolve(o model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	o = n.svc.variant.Adjust(o.Clone())
	o.Pagination.ID = n.id

	cfg := n.searchConfig(o.Configuration, o.Scope)
	if cfg == nil || len(cfg.SortOptions) == 0 || cfg.HasSortField(o.Sort.Field) {
		return o
	}
	first := cfg.SortOptions[0]
	dir := first.Direction
	if !dir.IsValid() {
		dir = model.SortAsc
	}
	n.svc.logger.Debug("sort fallback",
		"pagination_id", n.id, "configuration", o.Configuration,
		"from", o.Sort.Field, "to", first.Field)
	n.svc.metrics.SortFallbacks.Inc()
	o.Sort = model.SortOptions{Field: first.Field, Direction: dir}
	return o
}

// searchConfig returns the descriptor for configuration and scope, fetching
// it when either changed since the last call. Fetch errors disable the
// fallback until the next change.
func (n *node) searchConfig(configuration, scope string) *model.SearchConfig {
	if n.svc.provider == nil {
		return nil
	}
	key := [2]string{configuration, scope}
	if n.haveConfig && n.configKey == key {
		return n.config
	}
	n.configKey, n.haveConfig = key, true
	cfg, err := n.svc.provider.SearchConfig(n.ctx, configuration, scope)
	if err != nil {
		n.config = nil
		if n.ctx.Err() == nil {
			n.svc.logger.Warn("fetching search config",
				"pagination_id", n.id, "configuration", configuration, "scope", scope, "err", err)
		}
		return nil
	}
	n.config = cfg
	return cfg
}
