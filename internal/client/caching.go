package client

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/model"
)

// DefaultConfigCacheSize is used when NewCachingClient is given a size < 1.
const DefaultConfigCacheSize = 128

// CachingClient wraps a DiscoveryClient with an LRU of search
// configurations keyed by configuration and scope. Search results are
// never cached.
type CachingClient struct {
	DiscoveryClient
	configs *lru.Cache[string, *model.SearchConfig]
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ DiscoveryClient = (*CachingClient)(nil)

// NewCachingClient returns next wrapped in a config cache of the given size.
func NewCachingClient(next DiscoveryClient, size int, m *metrics.Metrics) *CachingClient {
	if size < 1 {
		size = DefaultConfigCacheSize
	}
	cache, err := lru.New[string, *model.SearchConfig](size)
	if err != nil {
		// lru.New only errors for size < 1
		panic(err)
	}
	return &CachingClient{
		DiscoveryClient: next,
		configs:         cache,
		metrics:         metrics.OrDiscard(m),
		logger:          slog.Default(),
	}
}

func configKey(configuration, scope string) string {
	return configuration + "\x00" + scope
}

// SearchConfig returns the cached configuration or fetches and caches it.
// Errors are not cached.
func (c *CachingClient) SearchConfig(ctx context.Context, configuration, scope string) (*model.SearchConfig, error) {
	key := configKey(configuration, scope)
	if cfg, ok := c.configs.Get(key); ok {
		c.metrics.ConfigCacheHits.Inc()
		return cfg, nil
	}
	c.metrics.ConfigCacheMisses.Inc()

	cfg, err := c.DiscoveryClient.SearchConfig(ctx, configuration, scope)
	if err != nil {
		return nil, err
	}
	if c.configs.Add(key, cfg) {
		c.logger.Debug("search config cache eviction", "configuration", configuration, "scope", scope)
	}
	return cfg, nil
}

// Purge drops every cached configuration.
func (c *CachingClient) Purge() {
	c.configs.Purge()
}

// Len returns the number of cached configurations.
func (c *CachingClient) Len() int {
	return c.configs.Len()
}
