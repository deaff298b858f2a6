package model

import "strings"

// DSOType restricts a search to one kind of repository object.
type DSOType string

const (
	DSOTypeItem       DSOType = "ITEM"
	DSOTypeCollection DSOType = "COLLECTION"
	DSOTypeCommunity  DSOType = "COMMUNITY"
	DSOTypeBitstream  DSOType = "BITSTREAM"
)

// String returns the string representation of the DSO type.
func (t DSOType) String() string {
	return string(t)
}

// IsValid checks whether the DSO type is a known value.
// The empty type means "no restriction" and is valid.
func (t DSOType) IsValid() bool {
	switch t {
	case "", DSOTypeItem, DSOTypeCollection, DSOTypeCommunity, DSOTypeBitstream:
		return true
	}
	return false
}

// ParseDSOType parses s case-insensitively. Unknown values return ok=false.
func ParseDSOType(s string) (DSOType, bool) {
	t := DSOType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", false
	}
	return t, true
}

// ViewMode selects how a result list is rendered.
type ViewMode string

const (
	ViewModeList   ViewMode = "list"
	ViewModeGrid   ViewMode = "grid"
	ViewModeDetail ViewMode = "detail"
)

// String returns the string representation of the view mode.
func (v ViewMode) String() string {
	return string(v)
}

// IsValid checks whether the view mode is a known value.
func (v ViewMode) IsValid() bool {
	switch v {
	case ViewModeList, ViewModeGrid, ViewModeDetail:
		return true
	}
	return false
}

// SortDirection is the ordering applied to the sort field.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// String returns the string representation of the direction.
func (d SortDirection) String() string {
	return string(d)
}

// IsValid checks whether the direction is a known value.
func (d SortDirection) IsValid() bool {
	return d == SortAsc || d == SortDesc
}

// ParseSortDirection parses s case-insensitively.
func ParseSortDirection(s string) (SortDirection, bool) {
	d := SortDirection(strings.ToUpper(strings.TrimSpace(s)))
	if !d.IsValid() {
		return "", false
	}
	return d, true
}

// Operator is the relational operator of a filter clause.
type Operator string

const (
	OperatorEquals       Operator = "equals"
	OperatorNotEquals    Operator = "notequals"
	OperatorAuthority    Operator = "authority"
	OperatorNotAuthority Operator = "notauthority"
	OperatorContains     Operator = "contains"
	OperatorNotContains  Operator = "notcontains"
	OperatorQuery        Operator = "query"
)

// String returns the string representation of the operator.
func (o Operator) String() string {
	return string(o)
}

// IsValid checks whether the operator is a known value.
func (o Operator) IsValid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorAuthority, OperatorNotAuthority,
		OperatorContains, OperatorNotContains, OperatorQuery:
		return true
	}
	return false
}

// Negated reports whether the operator excludes matches.
func (o Operator) Negated() bool {
	switch o {
	case OperatorNotEquals, OperatorNotAuthority, OperatorNotContains:
		return true
	}
	return false
}
