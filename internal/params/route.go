package params

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// Route is the routing state a page is rendered from: its path, the named
// path parameters the router extracted, and the query string.
type Route struct {
	Path       string            `json:"path"`
	PathParams map[string]string `json:"path_params,omitempty"`
	Query      url.Values        `json:"query"`
}

// ParseRoute parses a URL (absolute or path-only) into a Route. Matrix
// parameters on the last path segment ("/search;scope=S1") become path
// parameters.
func ParseRoute(raw string) (Route, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Route{}, fmt.Errorf("parsing route %q: %w", raw, err)
	}
	r := Route{Path: u.Path, Query: u.Query()}

	escaped := u.EscapedPath()
	i := strings.LastIndex(escaped, "/")
	j := strings.Index(escaped[i+1:], ";")
	if j < 0 {
		return r, nil
	}
	j += i + 1
	if p, err := url.PathUnescape(escaped[:j]); err == nil {
		r.Path = p
	}
	r.PathParams = make(map[string]string)
	for _, kv := range strings.Split(escaped[j+1:], ";") {
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		if dv, err := url.PathUnescape(v); err == nil {
			v = dv
		}
		r.PathParams[k] = v
	}
	return r, nil
}

// Clone returns a deep copy of the route.
func (r Route) Clone() Route {
	c := Route{Path: r.Path, Query: url.Values{}}
	if r.PathParams != nil {
		c.PathParams = maps.Clone(r.PathParams)
	}
	for k, v := range r.Query {
		c.Query[k] = slices.Clone(v)
	}
	return c
}

// Lookup returns the values for key: the query string wins over path
// parameters. The boolean is false when the key is absent from both.
func (r Route) Lookup(key string) ([]string, bool) {
	if v := r.Query[key]; len(v) > 0 {
		return v, true
	}
	if v, ok := r.PathParams[key]; ok {
		return []string{v}, true
	}
	return nil, false
}

// Prefixed returns every query key starting with prefix mapped to its values.
func (r Route) Prefixed(prefix string) map[string][]string {
	out := make(map[string][]string)
	for k, v := range r.Query {
		if strings.HasPrefix(k, prefix) && len(v) > 0 {
			out[k] = slices.Clone(v)
		}
	}
	return out
}

// URL encodes the route back into a path with query string. Path
// parameters are rendered as matrix parameters in sorted key order.
func (r Route) URL() string {
	var b strings.Builder
	b.WriteString(r.Path)
	keys := slices.Sorted(maps.Keys(r.PathParams))
	for _, k := range keys {
		b.WriteString(";")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(url.PathEscape(r.PathParams[k]))
	}
	if q := r.Query.Encode(); q != "" {
		b.WriteString("?")
		b.WriteString(q)
	}
	return b.String()
}

// Equal reports whether two routes are structurally equal. Keys with no
// values are ignored.
func (r Route) Equal(o Route) bool {
	if r.Path != o.Path {
		return false
	}
	if !maps.Equal(r.PathParams, o.PathParams) {
		return false
	}
	return valuesEqual(r.Query, o.Query)
}

func valuesEqual(a, b url.Values) bool {
	for k, v := range a {
		if !slices.Equal(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if len(v) > 0 && len(a[k]) == 0 {
			return false
		}
	}
	return true
}
