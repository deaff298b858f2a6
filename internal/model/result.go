package model

// PageInfo describes the page of a paginated server response. Number is
// 1-based here even though the REST API counts from zero.
type PageInfo struct {
	Number        int `json:"number"`
	Size          int `json:"size"`
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
}

// SearchObject is one hit of a discovery search.
type SearchObject struct {
	ID            string              `json:"id"`
	UUID          string              `json:"uuid,omitempty"`
	Name          string              `json:"name"`
	Type          DSOType             `json:"type"`
	Handle        string              `json:"handle,omitempty"`
	HitHighlights map[string][]string `json:"hit_highlights,omitempty"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Page    PageInfo        `json:"page"`
	Objects []*SearchObject `json:"objects"`
}

// IsEmpty reports whether the result carries no hits.
func (r *SearchResult) IsEmpty() bool {
	return r == nil || len(r.Objects) == 0
}

// FilterConfig describes one facet as configured on the server.
type FilterConfig struct {
	Name          string     `json:"name"`
	FilterType    string     `json:"filter_type"` // "text", "date", "hierarchical", ...
	HasFacets     bool       `json:"has_facets"`
	Operators     []Operator `json:"operators,omitempty"`
	OpenByDefault bool       `json:"open_by_default"`
	PageSize      int        `json:"page_size"`
}

// Allows reports whether op is permitted for this filter. A filter that
// lists no operators accepts all of them.
func (c FilterConfig) Allows(op Operator) bool {
	if len(c.Operators) == 0 {
		return true
	}
	for _, o := range c.Operators {
		if o == op {
			return true
		}
	}
	return false
}

// SortOption is one orderable field offered by a search configuration.
type SortOption struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// SearchConfig is the descriptor of a discovery configuration in a scope.
type SearchConfig struct {
	Configuration string         `json:"configuration"`
	Scope         string         `json:"scope,omitempty"`
	SortOptions   []SortOption   `json:"sort_options"`
	Filters       []FilterConfig `json:"filters"`
}

// HasSortField reports whether field is among the sort options.
func (c *SearchConfig) HasSortField(field string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.SortOptions {
		if s.Field == field {
			return true
		}
	}
	return false
}

// Filter returns the filter configuration with the given name.
func (c *SearchConfig) Filter(name string) (FilterConfig, bool) {
	if c != nil {
		for _, f := range c.Filters {
			if f.Name == name {
				return f, true
			}
		}
	}
	return FilterConfig{}, false
}

// FacetValue is one selectable value of a facet.
type FacetValue struct {
	Label     string `json:"label"`
	Value     string `json:"value"`
	Count     int    `json:"count"`
	Authority string `json:"authority,omitempty"`
}

// FacetPage is a page of values for one facet.
type FacetPage struct {
	Name   string       `json:"name"`
	Values []FacetValue `json:"values"`
	Page   PageInfo     `json:"page"`
}

// Retrieved is the payload of a settled retrieval: the hits plus the filter
// configuration that applies to the options they were fetched for.
type Retrieved struct {
	Result  *SearchResult  `json:"result"`
	Filters []FilterConfig `json:"filters"`
}
