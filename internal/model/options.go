package model

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// FilterParamPrefix prefixes every filter key on the wire and in the route ("f.author").
const FilterParamPrefix = "f."

// Filter is one narrowing clause of a search: field <operator> value.
type Filter struct {
	Field    string   `json:"field"`
	Value    string   `json:"value"`
	Operator Operator `json:"operator"`
}

// Key returns the parameter key of the filter, e.g. "f.author".
func (f Filter) Key() string {
	return FilterParamPrefix + f.Field
}

// Param returns the encoded parameter value, e.g. "Smith, J.,equals".
func (f Filter) Param() string {
	op := f.Operator
	if op == "" {
		op = OperatorEquals
	}
	return f.Value + "," + string(op)
}

// ParseFilterValue splits a raw filter parameter value into value and operator.
// The operator follows the last comma; when that suffix is not a known
// operator the whole string is the value and the operator is equals.
func ParseFilterValue(raw string) (string, Operator) {
	if i := strings.LastIndex(raw, ","); i >= 0 {
		if op := Operator(strings.ToLower(raw[i+1:])); op.IsValid() {
			return raw[:i], op
		}
	}
	return raw, OperatorEquals
}

// FiltersFromParams decodes "f.<field>" parameters into filters. Keys are
// visited in sorted order so that the result does not depend on map order;
// values of one key keep their order of appearance. Keys without the prefix
// and empty values are skipped.
func FiltersFromParams(params map[string][]string) []Filter {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, FilterParamPrefix) && len(k) > len(FilterParamPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var filters []Filter
	for _, k := range keys {
		field := strings.TrimPrefix(k, FilterParamPrefix)
		for _, raw := range params[k] {
			if raw == "" {
				continue
			}
			value, op := ParseFilterValue(raw)
			filters = append(filters, Filter{Field: field, Value: value, Operator: op})
		}
	}
	return filters
}

// FilterParams encodes filters back into route parameters.
func FilterParams(filters []Filter) url.Values {
	q := url.Values{}
	for _, f := range filters {
		q.Add(f.Key(), f.Param())
	}
	return q
}

// SearchOptions is the query part of a search, independent of paging.
type SearchOptions struct {
	Configuration string   `json:"configuration"`
	Scope         string   `json:"scope,omitempty"`
	Query         string   `json:"query"`
	Filters       []Filter `json:"filters,omitempty"`
	FixedFilter   string   `json:"fixed_filter,omitempty"` // e.g. "f.entityType=Publication,equals"
	DSOType       DSOType  `json:"dso_type,omitempty"`
	ViewMode      ViewMode `json:"view_mode"`
}

// Pagination identifies one on-screen result list and its current page.
// Two lists on one page must use distinct IDs.
type Pagination struct {
	ID          string `json:"id"`
	CurrentPage int    `json:"current_page"` // 1-based
	PageSize    int    `json:"page_size"`
}

// SortOptions is the active ordering of a result list.
type SortOptions struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Param encodes the sort as "field,DIRECTION".
func (s SortOptions) Param() string {
	if s.Field == "" {
		return ""
	}
	return s.Field + "," + string(s.Direction)
}

// ParseSortParam decodes "field,DIRECTION". A missing or unknown direction
// yields DESC for the score field and ASC otherwise.
func ParseSortParam(raw string) (SortOptions, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return SortOptions{}, false
	}
	field, dir, _ := strings.Cut(raw, ",")
	field = strings.TrimSpace(field)
	if field == "" {
		return SortOptions{}, false
	}
	d, ok := ParseSortDirection(dir)
	if !ok {
		d = SortAsc
		if field == "score" {
			d = SortDesc
		}
	}
	return SortOptions{Field: field, Direction: d}, true
}

// PaginatedSearchOptions is SearchOptions plus paging and ordering. Values
// are treated as immutable: the With* helpers return modified copies.
type PaginatedSearchOptions struct {
	SearchOptions
	Pagination Pagination  `json:"pagination"`
	Sort       SortOptions `json:"sort"`
}

// Clone returns a deep copy.
func (o PaginatedSearchOptions) Clone() PaginatedSearchOptions {
	if o.Filters != nil {
		o.Filters = append([]Filter(nil), o.Filters...)
	}
	return o
}

// WithQuery returns a copy with the query replaced.
func (o PaginatedSearchOptions) WithQuery(q string) PaginatedSearchOptions {
	c := o.Clone()
	c.Query = q
	return c
}

// WithScope returns a copy with the scope replaced.
func (o PaginatedSearchOptions) WithScope(scope string) PaginatedSearchOptions {
	c := o.Clone()
	c.Scope = scope
	return c
}

// WithConfiguration returns a copy with the configuration replaced.
func (o PaginatedSearchOptions) WithConfiguration(name string) PaginatedSearchOptions {
	c := o.Clone()
	c.Configuration = name
	return c
}

// WithFilters returns a copy with the filters replaced.
func (o PaginatedSearchOptions) WithFilters(filters []Filter) PaginatedSearchOptions {
	c := o.Clone()
	c.Filters = append([]Filter(nil), filters...)
	return c
}

// WithPage returns a copy with the current page replaced.
func (o PaginatedSearchOptions) WithPage(page int) PaginatedSearchOptions {
	c := o.Clone()
	c.Pagination.CurrentPage = page
	return c
}

// WithPageSize returns a copy with the page size replaced.
func (o PaginatedSearchOptions) WithPageSize(size int) PaginatedSearchOptions {
	c := o.Clone()
	c.Pagination.PageSize = size
	return c
}

// WithSort returns a copy with the sort replaced.
func (o PaginatedSearchOptions) WithSort(s SortOptions) PaginatedSearchOptions {
	c := o.Clone()
	c.Sort = s
	return c
}

// WithPaginationID returns a copy bound to another result list.
func (o PaginatedSearchOptions) WithPaginationID(id string) PaginatedSearchOptions {
	c := o.Clone()
	c.Pagination.ID = id
	return c
}

// Equivalent reports whether two option values are structurally equal.
// Nil and empty filter lists compare equal.
func Equivalent(a, b PaginatedSearchOptions) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

// Diff returns a human-readable difference between two option values, or
// "" when they are equivalent.
func Diff(a, b PaginatedSearchOptions) string {
	return cmp.Diff(a, b, cmpopts.EquateEmpty())
}

// RequestKey returns a canonical encoding of everything that influences the
// server response. The pagination ID and view mode are excluded, so two
// lists showing the same search share one request.
func (o PaginatedSearchOptions) RequestKey() string {
	q := url.Values{}
	q.Set("configuration", o.Configuration)
	q.Set("scope", o.Scope)
	q.Set("query", o.Query)
	q.Set("dsoType", string(o.DSOType))
	q.Set("fixed", o.FixedFilter)
	q.Set("page", strconv.Itoa(o.Pagination.CurrentPage))
	q.Set("size", strconv.Itoa(o.Pagination.PageSize))
	q.Set("sort", o.Sort.Param())
	for _, f := range o.Filters {
		q.Add("f", f.Key()+"="+f.Param())
	}
	return q.Encode()
}

// String returns the request key prefixed by the pagination ID, for logs.
func (o PaginatedSearchOptions) String() string {
	return o.Pagination.ID + "?" + o.RequestKey()
}
