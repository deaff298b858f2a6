// Package views holds the read-and-write-back helpers used by result list
// controls: filter labels, sort and page settings, and facet panels. They
// keep no state of their own beyond panel visibility; every change is a
// navigation on the route.
package views

import (
	"net/url"
	"slices"
	"strconv"

	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/search"
)

// Navigator applies query updates to the route. *params.Adapter
// satisfies it.
type Navigator interface {
	Navigate(updates url.Values) string
}

// Label is one active filter as rendered above a result list.
type Label struct {
	Field    string         `json:"field"`
	Value    string         `json:"value"`
	Operator model.Operator `json:"operator"`
	Text     string         `json:"text"`
	// Remove is the navigation that drops this filter.
	Remove url.Values `json:"remove"`
}

// FilterLabels returns one label per active filter of opts, in order.
func FilterLabels(opts model.PaginatedSearchOptions) []Label {
	labels := make([]Label, 0, len(opts.Filters))
	for _, f := range opts.Filters {
		labels = append(labels, Label{
			Field:    f.Field,
			Value:    f.Value,
			Operator: f.Operator,
			Text:     labelText(f),
			Remove:   removeUpdate(opts, f),
		})
	}
	return labels
}

func labelText(f model.Filter) string {
	if f.Operator.Negated() {
		return f.Field + ": not " + f.Value
	}
	return f.Field + ": " + f.Value
}

// fieldParams returns the encoded values of every filter on field.
func fieldParams(filters []model.Filter, field string) []string {
	var out []string
	for _, f := range filters {
		if f.Field == field {
			out = append(out, f.Param())
		}
	}
	return out
}

func hasFilter(filters []model.Filter, f model.Filter) bool {
	return slices.ContainsFunc(filters, func(g model.Filter) bool {
		return g.Field == f.Field && g.Value == f.Value && normalize(g.Operator) == normalize(f.Operator)
	})
}

func normalize(op model.Operator) model.Operator {
	if op == "" {
		return model.OperatorEquals
	}
	return op
}

// resetPage adds the update that sends the list back to its first page.
func resetPage(u url.Values, opts model.PaginatedSearchOptions) url.Values {
	u[search.ListParam(opts.Pagination.ID, search.ParamPage)] = nil
	return u
}

func removeUpdate(opts model.PaginatedSearchOptions, f model.Filter) url.Values {
	var rest []model.Filter
	for _, g := range opts.Filters {
		if g.Field == f.Field && g.Value == f.Value && normalize(g.Operator) == normalize(f.Operator) {
			continue
		}
		rest = append(rest, g)
	}
	return resetPage(url.Values{f.Key(): fieldParams(rest, f.Field)}, opts)
}

// AddFilter adds f unless an identical filter is active.
func AddFilter(nav Navigator, opts model.PaginatedSearchOptions, f model.Filter) string {
	if hasFilter(opts.Filters, f) {
		return nav.Navigate(nil)
	}
	values := append(fieldParams(opts.Filters, f.Field), f.Param())
	return nav.Navigate(resetPage(url.Values{f.Key(): values}, opts))
}

// RemoveFilter drops f if active.
func RemoveFilter(nav Navigator, opts model.PaginatedSearchOptions, f model.Filter) string {
	if !hasFilter(opts.Filters, f) {
		return nav.Navigate(nil)
	}
	return nav.Navigate(removeUpdate(opts, f))
}

// ToggleFilter adds f if absent and removes it otherwise.
func ToggleFilter(nav Navigator, opts model.PaginatedSearchOptions, f model.Filter) string {
	if hasFilter(opts.Filters, f) {
		return RemoveFilter(nav, opts, f)
	}
	return AddFilter(nav, opts, f)
}

// ClearFilters drops every active filter.
func ClearFilters(nav Navigator, opts model.PaginatedSearchOptions) string {
	u := url.Values{}
	for _, f := range opts.Filters {
		u[f.Key()] = nil
	}
	return nav.Navigate(resetPage(u, opts))
}

func set(key, value string) url.Values {
	if value == "" {
		return url.Values{key: nil}
	}
	return url.Values{key: {value}}
}

// SetQuery replaces the query text and returns to the first page.
func SetQuery(nav Navigator, opts model.PaginatedSearchOptions, q string) string {
	return nav.Navigate(resetPage(set(search.ParamQuery, q), opts))
}

// SetScope replaces the scope and returns to the first page.
func SetScope(nav Navigator, opts model.PaginatedSearchOptions, scope string) string {
	return nav.Navigate(resetPage(set(search.ParamScope, scope), opts))
}

// SetConfiguration switches the configuration and returns to the first page.
func SetConfiguration(nav Navigator, opts model.PaginatedSearchOptions, name string) string {
	return nav.Navigate(resetPage(set(search.ParamConfiguration, name), opts))
}

// SetDSOType restricts the object type and returns to the first page.
func SetDSOType(nav Navigator, opts model.PaginatedSearchOptions, t model.DSOType) string {
	return nav.Navigate(resetPage(set(search.ParamDSOType, string(t)), opts))
}

// SetView switches the view mode. The page is kept.
func SetView(nav Navigator, _ model.PaginatedSearchOptions, v model.ViewMode) string {
	return nav.Navigate(set(search.ParamView, string(v)))
}

// SetSort changes the ordering of the list and returns to the first page.
func SetSort(nav Navigator, opts model.PaginatedSearchOptions, s model.SortOptions) string {
	return nav.Navigate(resetPage(set(search.ListParam(opts.Pagination.ID, search.ParamSort), s.Param()), opts))
}

// SetPage moves the list to page n.
func SetPage(nav Navigator, opts model.PaginatedSearchOptions, n int) string {
	return nav.Navigate(url.Values{search.ListParam(opts.Pagination.ID, search.ParamPage): {strconv.Itoa(n)}})
}

// SetPageSize changes the page size and returns to the first page.
func SetPageSize(nav Navigator, opts model.PaginatedSearchOptions, size int) string {
	u := url.Values{search.ListParam(opts.Pagination.ID, search.ParamPageSize): {strconv.Itoa(size)}}
	return nav.Navigate(resetPage(u, opts))
}
