package search

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// Variant customizes the merger for one kind of search page. It is chosen
// when the Service is constructed and never changes afterwards.
type Variant interface {
	// Name identifies the variant in logs and over the API.
	Name() string
	// Defaults adjusts the construction-time defaults.
	Defaults(model.PaginatedSearchOptions) model.PaginatedSearchOptions
	// Adjust runs on every merged value before it is compared and emitted.
	Adjust(model.PaginatedSearchOptions) model.PaginatedSearchOptions
}

// Variant names accepted by VariantByName.
const (
	VariantDefault     = "default"
	VariantWorkspace   = "workspace"
	VariantEntityGroup = "entity-group"
)

// DefaultVariant takes the configuration from the route as is.
type DefaultVariant struct{}

func (DefaultVariant) Name() string { return VariantDefault }

func (DefaultVariant) Defaults(o model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	return o
}

func (DefaultVariant) Adjust(o model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	return o
}

// Workspace configuration names.
const (
	ConfigurationWorkspace = "workspace"
	ConfigurationWorkflow  = "workflow"
)

// WorkspaceVariant restricts the configuration to the submitter's
// workspace or the reviewer's workflow pool.
type WorkspaceVariant struct{}

func (WorkspaceVariant) Name() string { return VariantWorkspace }

func (WorkspaceVariant) Defaults(o model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	o.Configuration = ConfigurationWorkspace
	return o
}

func (WorkspaceVariant) Adjust(o model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	if o.Configuration != ConfigurationWorkspace && o.Configuration != ConfigurationWorkflow {
		o.Configuration = ConfigurationWorkspace
	}
	return o
}

// EntityGroupVariant pins every search to one entity type through a fixed
// filter. The configuration defaults to the lower-cased entity type.
type EntityGroupVariant struct {
	EntityType string
}

func (v EntityGroupVariant) Name() string { return VariantEntityGroup }

// FixedFilter returns the filter clause appended to every request.
func (v EntityGroupVariant) FixedFilter() string {
	return model.FilterParamPrefix + "entityType=" + v.EntityType + "," + string(model.OperatorEquals)
}

func (v EntityGroupVariant) Defaults(o model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	if o.Configuration == "" || o.Configuration == DefaultConfiguration {
		o.Configuration = strings.ToLower(v.EntityType)
	}
	o.FixedFilter = v.FixedFilter()
	return o
}

func (v EntityGroupVariant) Adjust(o model.PaginatedSearchOptions) model.PaginatedSearchOptions {
	o.FixedFilter = v.FixedFilter()
	// A route filter on the pinned field would contradict the fixed one.
	if slices.ContainsFunc(o.Filters, isEntityTypeFilter) {
		o.Filters = slices.DeleteFunc(slices.Clone(o.Filters), isEntityTypeFilter)
	}
	return o
}

func isEntityTypeFilter(f model.Filter) bool { return f.Field == "entityType" }

// VariantByName returns the variant registered under name. entityType is
// required for the entity-group variant and ignored otherwise.
func VariantByName(name, entityType string) (Variant, error) {
	switch name {
	case "", VariantDefault:
		return DefaultVariant{}, nil
	case VariantWorkspace:
		return WorkspaceVariant{}, nil
	case VariantEntityGroup:
		if strings.TrimSpace(entityType) == "" {
			return nil, fmt.Errorf("variant %q requires an entity type", name)
		}
		return EntityGroupVariant{EntityType: strings.TrimSpace(entityType)}, nil
	}
	return nil, fmt.Errorf("unknown variant %q", name)
}
