// Package params exposes route parameters as independently observable,
// deduplicated streams and accepts write-back navigations.
package params

import (
	"context"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/alfredjeanlab/discovery/internal/stream"
)

// Adapter owns the current route. Watchers derive per-key streams from it;
// Navigate publishes a new route to all of them.
type Adapter struct {
	route  *stream.Value[Route]
	logger *slog.Logger
}

// New parses rawURL and returns an adapter positioned on it.
func New(rawURL string) (*Adapter, error) {
	r, err := ParseRoute(rawURL)
	if err != nil {
		return nil, err
	}
	return NewFromRoute(r), nil
}

// NewFromRoute returns an adapter positioned on r.
func NewFromRoute(r Route) *Adapter {
	return &Adapter{
		route:  stream.NewValue(r.Clone(), Route.Equal),
		logger: slog.Default(),
	}
}

// SetLogger replaces the adapter's logger.
func (a *Adapter) SetLogger(l *slog.Logger) {
	if l != nil {
		a.logger = l
	}
}

// Route returns a copy of the current route.
func (a *Adapter) Route() Route {
	return a.route.Get().Clone()
}

// URL returns the current route encoded as a URL.
func (a *Adapter) URL() string {
	return a.route.Get().URL()
}

// Watch returns a stream of the values of key. The channel yields the
// current value first and then only changes; an absent key yields def.
// The channel closes when ctx is done or the adapter is closed.
func (a *Adapter) Watch(ctx context.Context, key string, def []string) <-chan []string {
	return stream.Map(ctx, a.route, func(r Route) []string {
		return lookup(r, key, def)
	}, slices.Equal[[]string])
}

// WatchValue is Watch for single-valued keys: it yields the first value.
func (a *Adapter) WatchValue(ctx context.Context, key, def string) <-chan string {
	return stream.Map(ctx, a.route, func(r Route) string {
		return lookupValue(r, key, def)
	}, func(x, y string) bool { return x == y })
}

// WatchPrefix returns a stream of all query keys starting with prefix,
// mapped to their ordered values.
func (a *Adapter) WatchPrefix(ctx context.Context, prefix string) <-chan map[string][]string {
	return stream.Map(ctx, a.route, func(r Route) map[string][]string {
		return r.Prefixed(prefix)
	}, func(x, y map[string][]string) bool {
		return maps.EqualFunc(x, y, slices.Equal[[]string])
	})
}

// Get returns the current values of key, or def when absent.
func (a *Adapter) Get(key string, def []string) []string {
	return lookup(a.route.Get(), key, def)
}

// GetValue returns the first current value of key, or def when absent.
func (a *Adapter) GetValue(key, def string) string {
	return lookupValue(a.route.Get(), key, def)
}

// GetPrefix returns all query keys starting with prefix.
func (a *Adapter) GetPrefix(prefix string) map[string][]string {
	return a.route.Get().Prefixed(prefix)
}

// Navigate merges updates into the query string and publishes the result.
// A key mapped to no values (or only empty strings) is removed. Path
// parameters are left alone. It returns the new URL; navigations that do
// not change the route notify nobody.
func (a *Adapter) Navigate(updates url.Values) string {
	next, changed := a.route.Update(func(r Route) Route {
		c := r.Clone()
		for k, v := range updates {
			v = nonEmpty(v)
			if len(v) == 0 {
				delete(c.Query, k)
				continue
			}
			c.Query[k] = v
		}
		return c
	})
	if changed {
		a.logger.Debug("navigated", "url", next.URL())
	}
	return next.URL()
}

// Replace swaps the whole query string.
func (a *Adapter) Replace(query url.Values) string {
	next, _ := a.route.Update(func(r Route) Route {
		c := r.Clone()
		c.Query = url.Values{}
		for k, v := range query {
			if v = nonEmpty(v); len(v) > 0 {
				c.Query[k] = v
			}
		}
		return c
	})
	return next.URL()
}

// Close ends every watcher stream.
func (a *Adapter) Close() {
	a.route.Close()
}

func lookup(r Route, key string, def []string) []string {
	if v, ok := r.Lookup(key); ok {
		return slices.Clone(v)
	}
	return def
}

func lookupValue(r Route, key, def string) string {
	if v, ok := r.Lookup(key); ok {
		return v[0]
	}
	return def
}

func nonEmpty(v []string) []string {
	out := make([]string, 0, len(v))
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
