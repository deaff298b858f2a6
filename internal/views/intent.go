package views

import (
	"fmt"
	"strings"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// Intent actions.
const (
	ActionAddFilter        = "add_filter"
	ActionRemoveFilter     = "remove_filter"
	ActionToggleFilter     = "toggle_filter"
	ActionClearFilters     = "clear_filters"
	ActionSetQuery         = "set_query"
	ActionSetScope         = "set_scope"
	ActionSetConfiguration = "set_configuration"
	ActionSetDSOType       = "set_dso_type"
	ActionSetView          = "set_view"
	ActionSetSort          = "set_sort"
	ActionSetPage          = "set_page"
	ActionSetPageSize      = "set_page_size"
)

// Intent is a serialized user interaction with a result list's controls.
type Intent struct {
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
	Value    string `json:"value,omitempty"`
	Operator string `json:"operator,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
}

func (in Intent) filter() (model.Filter, error) {
	field := strings.TrimSpace(in.Field)
	if field == "" {
		return model.Filter{}, fmt.Errorf("%s: field is required", in.Action)
	}
	op := model.OperatorEquals
	if in.Operator != "" {
		op = model.Operator(strings.ToLower(in.Operator))
		if !op.IsValid() {
			return model.Filter{}, fmt.Errorf("%s: invalid operator %q", in.Action, in.Operator)
		}
	}
	return model.Filter{Field: field, Value: in.Value, Operator: op}, nil
}

// Apply performs the intent against opts and returns the new URL.
func Apply(nav Navigator, opts model.PaginatedSearchOptions, in Intent) (string, error) {
	switch in.Action {
	case ActionAddFilter, ActionRemoveFilter, ActionToggleFilter:
		f, err := in.filter()
		if err != nil {
			return "", err
		}
		switch in.Action {
		case ActionAddFilter:
			return AddFilter(nav, opts, f), nil
		case ActionRemoveFilter:
			return RemoveFilter(nav, opts, f), nil
		default:
			return ToggleFilter(nav, opts, f), nil
		}
	case ActionClearFilters:
		return ClearFilters(nav, opts), nil
	case ActionSetQuery:
		return SetQuery(nav, opts, in.Value), nil
	case ActionSetScope:
		return SetScope(nav, opts, in.Value), nil
	case ActionSetConfiguration:
		return SetConfiguration(nav, opts, in.Value), nil
	case ActionSetDSOType:
		t, ok := model.ParseDSOType(in.Value)
		if !ok {
			return "", fmt.Errorf("%s: invalid dso type %q", in.Action, in.Value)
		}
		return SetDSOType(nav, opts, t), nil
	case ActionSetView:
		v := model.ViewMode(strings.ToLower(in.Value))
		if !v.IsValid() {
			return "", fmt.Errorf("%s: invalid view mode %q", in.Action, in.Value)
		}
		return SetView(nav, opts, v), nil
	case ActionSetSort:
		s, ok := model.ParseSortParam(in.Value)
		if !ok {
			return "", fmt.Errorf("%s: invalid sort %q", in.Action, in.Value)
		}
		return SetSort(nav, opts, s), nil
	case ActionSetPage:
		if in.Page < 1 {
			return "", fmt.Errorf("%s: page must be at least 1, got %d", in.Action, in.Page)
		}
		return SetPage(nav, opts, in.Page), nil
	case ActionSetPageSize:
		if in.PageSize < 1 {
			return "", fmt.Errorf("%s: page size must be positive, got %d", in.Action, in.PageSize)
		}
		return SetPageSize(nav, opts, in.PageSize), nil
	}
	return "", fmt.Errorf("unknown action %q", in.Action)
}
