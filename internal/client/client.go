// Package client provides a transport-agnostic interface to the repository's
// discovery REST API and an HTTP/JSON implementation of it.
package client

import (
	"context"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// DiscoveryClient is the interface the pipeline and the CLI use to talk to
// the discovery API. It is implemented by HTTPClient and CachingClient.
type DiscoveryClient interface {
	// Search returns one page of hits for opts.
	Search(ctx context.Context, opts model.PaginatedSearchOptions) (*model.SearchResult, error)

	// SearchConfig returns the sort options and filters of a configuration
	// within a scope. An empty scope means the whole repository.
	SearchConfig(ctx context.Context, configuration, scope string) (*model.SearchConfig, error)

	// FacetValues returns one page of values of a facet, narrowed by opts.
	FacetValues(ctx context.Context, name string, opts model.PaginatedSearchOptions) (*model.FacetPage, error)

	// Health reports the API status string.
	Health(ctx context.Context) (string, error)

	Close() error
}
