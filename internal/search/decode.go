package search

import (
	"strconv"
	"strings"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// Route keys read by the merger. Per-list keys are prefixed with the
// pagination id ("spc.page").
const (
	ParamQuery         = "query"
	ParamScope         = "scope"
	ParamConfiguration = "configuration"
	ParamDSOType       = "dsoType"
	ParamView          = "view"
	ParamPage          = "page"
	ParamPageSize      = "rpp"
	ParamSort          = "sort"
)

// ListParam returns the route key of a per-list parameter.
func ListParam(paginationID, name string) string {
	return paginationID + "." + name
}

// The decoders below never fail: a value that cannot be decoded resolves
// to the default.

func decodePage(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func decodePageSize(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}

func decodeSort(raw string, def model.SortOptions) model.SortOptions {
	s, ok := model.ParseSortParam(raw)
	if !ok {
		return def
	}
	return s
}

func decodeDSOType(raw string, def model.DSOType) model.DSOType {
	t, ok := model.ParseDSOType(raw)
	if !ok {
		return def
	}
	return t
}

func decodeView(raw string, def model.ViewMode) model.ViewMode {
	v := model.ViewMode(strings.ToLower(strings.TrimSpace(raw)))
	if !v.IsValid() {
		return def
	}
	return v
}
