package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateOptions checks paginated search options for constraint violations.
// It returns a *ValidationError if any rules fail, or nil if the options are valid.
func ValidateOptions(o PaginatedSearchOptions) error {
	var ve ValidationError

	if strings.TrimSpace(o.Pagination.ID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "pagination.id", Message: "is required"})
	} else if strings.ContainsAny(o.Pagination.ID, ".&=?") {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "pagination.id",
			Message: fmt.Sprintf("must not contain '.', '&', '=' or '?', got %q", o.Pagination.ID),
		})
	}

	if o.Pagination.CurrentPage < 1 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "pagination.current_page",
			Message: fmt.Sprintf("must be at least 1, got %d", o.Pagination.CurrentPage),
		})
	}

	if o.Pagination.PageSize <= 0 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "pagination.page_size",
			Message: fmt.Sprintf("must be positive, got %d", o.Pagination.PageSize),
		})
	}

	// Sort: a field without a valid direction is rejected; no field means server default.
	if o.Sort.Field != "" && !o.Sort.Direction.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "sort.direction",
			Message: fmt.Sprintf("invalid value %q", o.Sort.Direction),
		})
	}

	if !o.DSOType.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "dso_type",
			Message: fmt.Sprintf("invalid value %q", o.DSOType),
		})
	}

	if o.ViewMode != "" && !o.ViewMode.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "view_mode",
			Message: fmt.Sprintf("invalid value %q", o.ViewMode),
		})
	}

	for i, f := range o.Filters {
		if strings.TrimSpace(f.Field) == "" {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("filters[%d].field", i),
				Message: "is required",
			})
		}
		if !f.Operator.IsValid() {
			ve.Errors = append(ve.Errors, FieldError{
				Field:   fmt.Sprintf("filters[%d].operator", i),
				Message: fmt.Sprintf("invalid value %q", f.Operator),
			})
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
