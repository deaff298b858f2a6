package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/discovery/internal/client"
	"github.com/alfredjeanlab/discovery/internal/config"
	"github.com/alfredjeanlab/discovery/internal/events"
	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/server"
	"github.com/alfredjeanlab/discovery/internal/stats"
	"github.com/alfredjeanlab/discovery/internal/store/postgres"
	dsync "github.com/alfredjeanlab/discovery/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/health"
)

const (
	reaperSweepInterval = time.Minute
	pruneInterval       = time.Hour
	upstreamInterval    = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the discovery session server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
		slog.SetDefault(logger)

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m := metrics.New(reg)

		api := client.NewHTTPClient(cfg.APIURL, cfg.APIToken)
		defer api.Close()
		// Only the sort fallback reads through the cache. Retrievals fetch
		// their filter configuration with every search.
		configs := client.NewCachingClient(api, cfg.ConfigCacheSize, m)

		// Create event publisher and subscriber.
		var (
			publisher  events.Publisher
			subscriber events.Subscriber
		)
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			publisher = pub
			sub, err := events.NewNATSSubscriber(cfg.NATSURL)
			if err != nil {
				pub.Close()
				return err
			}
			subscriber = sub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			bus := events.NewLocalBus()
			publisher, subscriber = bus, bus
			logger.Info("events in-process (DISCOVERY_NATS_URL not set)")
		}

		opts := []server.Option{server.WithLogger(logger), server.WithMetrics(m, reg), server.WithConfigProvider(configs)}

		// Connect to Postgres when a search log is configured.
		var (
			store    *postgres.PostgresStore
			recorder *stats.Recorder
		)
		bg, cancelBG := context.WithCancel(context.Background())
		defer cancelBG()
		if cfg.DatabaseURL != "" {
			store, err = postgres.New(cfg.DatabaseURL)
			if err != nil {
				publisher.Close()
				return err
			}
			recorder = stats.NewRecorder(store, logger, m)
			opts = append(opts, server.WithRecorder(recorder))
			go func() {
				if err := recorder.StartSubscriber(bg, subscriber); err != nil {
					logger.Error("stats subscriber error", "err", err)
				}
			}()
			if cfg.SearchRetention > 0 {
				go pruneLoop(bg, recorder, cfg.SearchRetention, logger)
			}
			logger.Info("search log enabled")
		} else {
			logger.Info("search log disabled (DISCOVERY_DATABASE_URL not set)")
		}

		// Create server components.
		ds := server.NewDiscoveryServer(api, publisher, opts...)
		ds.StartReaper(cfg.SessionIdle, reaperSweepInterval)

		// Start gRPC listener (health and reflection only).
		grpcDone := make(chan struct{})
		stopGRPC := func() {}
		if cfg.GRPCAddr != "" {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				ds.Close()
				publisher.Close()
				return err
			}
			hs := health.NewServer()
			grpcServer := server.NewGRPCServer(hs, cfg.AuthToken, logger)
			go ds.WatchUpstream(bg, hs, upstreamInterval)
			go func() {
				defer close(grpcDone)
				logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
				if err := grpcServer.Serve(lis); err != nil {
					logger.Error("gRPC server error", "err", err)
				}
			}()
			stopGRPC = grpcServer.GracefulStop
		} else {
			close(grpcDone)
		}

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           ds.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start export scheduler if any destinations are configured.
		var scheduler *dsync.Scheduler
		if cfg.ExportEnabled() {
			dests := exportDestinations(bg, cfg, logger)
			if len(dests) > 0 {
				scheduler = dsync.NewScheduler(store, dests, cfg.ExportInterval, cfg.ExportWindow, logger)
				scheduler.Start()
				logger.Info("export scheduler started", "interval", cfg.ExportInterval)
			}
		}

		logger.Info("discovery server started",
			"http_addr", cfg.HTTPAddr,
			"grpc_addr", cfg.GRPCAddr,
			"api_url", cfg.APIURL,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		stopGRPC()
		<-grpcDone

		if err := ds.Close(); err != nil {
			logger.Error("error closing sessions", "err", err)
		}
		cancelBG()

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if sub, ok := subscriber.(*events.NATSSubscriber); ok {
			sub.Close()
		}
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Error("error closing store", "err", err)
			}
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func exportDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []dsync.Destination {
	var dests []dsync.Destination
	if cfg.ExportS3Bucket != "" {
		s3Dest, err := dsync.NewS3Destination(ctx, dsync.S3Config{
			Bucket:   cfg.ExportS3Bucket,
			Key:      cfg.ExportS3Key,
			Region:   cfg.ExportS3Region,
			Endpoint: cfg.ExportS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)
		}
	}
	if cfg.ExportGitRepo != "" {
		dests = append(dests, dsync.NewGitDestination(cfg.ExportGitRepo, cfg.ExportGitFile, cfg.ExportGitBranch))
		logger.Info("export git destination enabled", "repo", cfg.ExportGitRepo, "file", cfg.ExportGitFile)
	}
	return dests
}

// pruneLoop drops search log entries older than retention once per
// pruneInterval.
func pruneLoop(ctx context.Context, r *stats.Recorder, retention time.Duration, logger *slog.Logger) {
	t := time.NewTicker(pruneInterval)
	defer t.Stop()
	for {
		if _, err := r.Prune(ctx, retention); err != nil && ctx.Err() == nil {
			logger.Warn("prune failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
