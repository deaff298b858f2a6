package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIURL      string // DISCOVERY_API_URL (required; base of the repository REST API)
	APIToken    string // DISCOVERY_API_TOKEN (optional bearer token for the repository API)
	HTTPAddr    string // DISCOVERY_HTTP_ADDR (default ":8080")
	GRPCAddr    string // DISCOVERY_GRPC_ADDR (default ":9090"; empty = no gRPC listener)
	NATSURL     string // DISCOVERY_NATS_URL (optional, empty = in-process events)
	DatabaseURL string // DISCOVERY_DATABASE_URL (optional, enables the search log)
	AuthToken   string // DISCOVERY_AUTH_TOKEN (optional, empty = auth disabled)
	LogLevel    slog.Level

	SessionIdle     time.Duration // DISCOVERY_SESSION_IDLE (default 15m)
	ConfigCacheSize int           // DISCOVERY_CONFIG_CACHE_SIZE (default 128)
	SearchRetention time.Duration // DISCOVERY_SEARCH_RETENTION (default 0 = keep forever)

	// Export settings
	ExportInterval   time.Duration // DISCOVERY_EXPORT_INTERVAL (default 0 = disabled)
	ExportWindow     time.Duration // DISCOVERY_EXPORT_WINDOW (default 0 = whole log)
	ExportS3Bucket   string        // DISCOVERY_EXPORT_S3_BUCKET (enables S3 when set)
	ExportS3Endpoint string        // DISCOVERY_EXPORT_S3_ENDPOINT (custom endpoint for MinIO)
	ExportS3Region   string        // DISCOVERY_EXPORT_S3_REGION (default "us-east-1")
	ExportS3Key      string        // DISCOVERY_EXPORT_S3_KEY (default "discovery/search-log-{date}.jsonl")
	ExportGitRepo    string        // DISCOVERY_EXPORT_GIT_REPO (enables git when set; path to clone)
	ExportGitFile    string        // DISCOVERY_EXPORT_GIT_FILE (default "search-log.jsonl")
	ExportGitBranch  string        // DISCOVERY_EXPORT_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		APIURL:           strings.TrimRight(os.Getenv("DISCOVERY_API_URL"), "/"),
		APIToken:         os.Getenv("DISCOVERY_API_TOKEN"),
		HTTPAddr:         envOrDefault("DISCOVERY_HTTP_ADDR", ":8080"),
		GRPCAddr:         envOrDefault("DISCOVERY_GRPC_ADDR", ":9090"),
		NATSURL:          os.Getenv("DISCOVERY_NATS_URL"),
		DatabaseURL:      os.Getenv("DISCOVERY_DATABASE_URL"),
		AuthToken:        os.Getenv("DISCOVERY_AUTH_TOKEN"),
		ExportS3Bucket:   os.Getenv("DISCOVERY_EXPORT_S3_BUCKET"),
		ExportS3Endpoint: os.Getenv("DISCOVERY_EXPORT_S3_ENDPOINT"),
		ExportS3Region:   envOrDefault("DISCOVERY_EXPORT_S3_REGION", "us-east-1"),
		ExportS3Key:      envOrDefault("DISCOVERY_EXPORT_S3_KEY", "discovery/search-log-{date}.jsonl"),
		ExportGitRepo:    os.Getenv("DISCOVERY_EXPORT_GIT_REPO"),
		ExportGitFile:    envOrDefault("DISCOVERY_EXPORT_GIT_FILE", "search-log.jsonl"),
		ExportGitBranch:  envOrDefault("DISCOVERY_EXPORT_GIT_BRANCH", "main"),
	}
	if c.APIURL == "" {
		return nil, fmt.Errorf("DISCOVERY_API_URL is required")
	}
	if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("DISCOVERY_API_URL: %q is not an absolute URL", c.APIURL)
	}

	var err error
	if c.SessionIdle, err = durationEnv("DISCOVERY_SESSION_IDLE", "15m"); err != nil {
		return nil, err
	}
	if c.SessionIdle <= 0 {
		return nil, fmt.Errorf("DISCOVERY_SESSION_IDLE: must be positive")
	}
	if c.SearchRetention, err = durationEnv("DISCOVERY_SEARCH_RETENTION", "0"); err != nil {
		return nil, err
	}
	if c.ExportInterval, err = durationEnv("DISCOVERY_EXPORT_INTERVAL", "0"); err != nil {
		return nil, err
	}
	if c.ExportWindow, err = durationEnv("DISCOVERY_EXPORT_WINDOW", "0"); err != nil {
		return nil, err
	}

	size := envOrDefault("DISCOVERY_CONFIG_CACHE_SIZE", "128")
	if c.ConfigCacheSize, err = strconv.Atoi(size); err != nil || c.ConfigCacheSize <= 0 {
		return nil, fmt.Errorf("DISCOVERY_CONFIG_CACHE_SIZE: invalid size %q", size)
	}

	if lvl := os.Getenv("DISCOVERY_LOG_LEVEL"); lvl != "" {
		if err := c.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return nil, fmt.Errorf("DISCOVERY_LOG_LEVEL: %w", err)
		}
	}

	return c, nil
}

// ExportEnabled reports whether a periodic export is configured: an
// interval, a destination and a search log to read from.
func (c *Config) ExportEnabled() bool {
	return c.ExportInterval > 0 && c.DatabaseURL != "" && (c.ExportS3Bucket != "" || c.ExportGitRepo != "")
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
