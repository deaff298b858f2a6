package client

import (
	"strings"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// The REST API speaks HAL: payload lists live under "_embedded" and pages
// are numbered from zero. These types mirror the wire form only; callers
// see the model types.

type wirePage struct {
	Number        int `json:"number"`
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}

func (p wirePage) toModel() model.PageInfo {
	return model.PageInfo{
		Number:        p.Number + 1,
		Size:          p.Size,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
	}
}

type wireObject struct {
	ID     string `json:"id"`
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Type   string `json:"type"`
}

type wireSearchResult struct {
	HitHighlights map[string][]string `json:"hitHighlights"`
	Embedded      struct {
		IndexableObject *wireObject `json:"indexableObject"`
	} `json:"_embedded"`
}

type wireSearchObjects struct {
	Page     wirePage `json:"page"`
	Embedded struct {
		SearchResults []wireSearchResult `json:"searchResults"`
	} `json:"_embedded"`
}

func (w *wireSearchObjects) toModel() *model.SearchResult {
	res := &model.SearchResult{
		Page:    w.Page.toModel(),
		Objects: make([]*model.SearchObject, 0, len(w.Embedded.SearchResults)),
	}
	for _, r := range w.Embedded.SearchResults {
		o := r.Embedded.IndexableObject
		if o == nil {
			continue
		}
		id := o.ID
		if id == "" {
			id = o.UUID
		}
		t, _ := model.ParseDSOType(o.Type)
		res.Objects = append(res.Objects, &model.SearchObject{
			ID:            id,
			UUID:          o.UUID,
			Name:          o.Name,
			Type:          t,
			Handle:        o.Handle,
			HitHighlights: r.HitHighlights,
		})
	}
	return res
}

type wireOperator struct {
	Operator string `json:"operator"`
}

type wireFilter struct {
	Filter        string         `json:"filter"`
	FilterType    string         `json:"filterType"`
	HasFacets     bool           `json:"hasFacets"`
	Operators     []wireOperator `json:"operators"`
	OpenByDefault bool           `json:"openByDefault"`
	PageSize      int            `json:"pageSize"`
}

type wireSortOption struct {
	Name      string `json:"name"`
	SortOrder string `json:"sortOrder"`
}

type wireSearchConfig struct {
	Configuration string           `json:"configuration"`
	Scope         string           `json:"scope"`
	Filters       []wireFilter     `json:"filters"`
	SortOptions   []wireSortOption `json:"sortOptions"`
}

func (w *wireSearchConfig) toModel(configuration, scope string) *model.SearchConfig {
	cfg := &model.SearchConfig{
		Configuration: configuration,
		Scope:         scope,
		SortOptions:   make([]model.SortOption, 0, len(w.SortOptions)),
		Filters:       make([]model.FilterConfig, 0, len(w.Filters)),
	}
	if w.Configuration != "" {
		cfg.Configuration = w.Configuration
	}
	for _, s := range w.SortOptions {
		dir, ok := model.ParseSortDirection(s.SortOrder)
		if !ok {
			dir = model.SortAsc
		}
		cfg.SortOptions = append(cfg.SortOptions, model.SortOption{Field: s.Name, Direction: dir})
	}
	for _, f := range w.Filters {
		fc := model.FilterConfig{
			Name:          f.Filter,
			FilterType:    f.FilterType,
			HasFacets:     f.HasFacets,
			OpenByDefault: f.OpenByDefault,
			PageSize:      f.PageSize,
		}
		for _, op := range f.Operators {
			if o := model.Operator(strings.ToLower(op.Operator)); o.IsValid() {
				fc.Operators = append(fc.Operators, o)
			}
		}
		cfg.Filters = append(cfg.Filters, fc)
	}
	return cfg
}

type wireFacetValue struct {
	Label        string `json:"label"`
	Count        int    `json:"count"`
	AuthorityKey string `json:"authorityKey"`
}

type wireFacet struct {
	Name     string   `json:"name"`
	Page     wirePage `json:"page"`
	Embedded struct {
		Values []wireFacetValue `json:"values"`
	} `json:"_embedded"`
}

func (w *wireFacet) toModel() *model.FacetPage {
	fp := &model.FacetPage{
		Name:   w.Name,
		Page:   w.Page.toModel(),
		Values: make([]model.FacetValue, 0, len(w.Embedded.Values)),
	}
	for _, v := range w.Embedded.Values {
		fp.Values = append(fp.Values, model.FacetValue{
			Label:     v.Label,
			Value:     v.Label,
			Count:     v.Count,
			Authority: v.AuthorityKey,
		})
	}
	return fp
}
