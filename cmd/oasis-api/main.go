package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // timezone database for hosts without zoneinfo

	"github.com/ahmethakanbesel/oasis-api/internal/config"
	"github.com/ahmethakanbesel/oasis-api/internal/fetcher"
	"github.com/ahmethakanbesel/oasis-api/internal/fetcher/oasis"
	"github.com/ahmethakanbesel/oasis-api/internal/job"
	"github.com/ahmethakanbesel/oasis-api/internal/observation"
	"github.com/ahmethakanbesel/oasis-api/internal/platform/httpclient"
	"github.com/ahmethakanbesel/oasis-api/internal/platform/mysql"
	"github.com/ahmethakanbesel/oasis-api/internal/platform/sqlite"
	jobrepo "github.com/ahmethakanbesel/oasis-api/internal/repository/job"
	obsrepo "github.com/ahmethakanbesel/oasis-api/internal/repository/observation"
	"github.com/ahmethakanbesel/oasis-api/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		slog.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	// Root context: cancelled on SIGINT/SIGTERM so in-flight fetches stop
	// promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	obsRepo := obsrepo.NewRepository(db.DB)
	jobRepo := jobrepo.NewRepository(db.DB)

	// Optional sinks
	var sinks []observation.Sink
	if cfg.MySQLDSN != "" {
		mdb, err := mysql.Open(rootCtx, cfg.MySQLDSN)
		if err != nil {
			slog.Error("failed to open mysql", "error", err)
			os.Exit(1)
		}
		defer func() { _ = mdb.Close() }()
		sinks = append(sinks, obsrepo.NewMySQLSink(mdb))
	}
	if cfg.SnapshotDir != "" {
		snapshots := observation.NewSnapshotSink(cfg.SnapshotDir)
		if cfg.SnapshotRestore {
			if _, err := snapshots.Restore(rootCtx, obsRepo); err != nil {
				slog.Error("failed to restore snapshots", "error", err)
				os.Exit(1)
			}
		}
		sinks = append(sinks, snapshots)
	}

	// OASIS client shared by all fetchers so pacing applies across datasets
	httpClient, err := httpclient.New(httpclient.Config{
		ProxyURL:  cfg.HTTPProxyURL,
		Timeout:   cfg.HTTPTimeout,
		UserAgent: "oasis-api/1.0",
	})
	if err != nil {
		slog.Error("invalid http client config", "error", err)
		os.Exit(1)
	}
	limiter := oasis.NewRateLimiter(time.Minute, cfg.OASISRequestsPerMinute)
	client := oasis.NewClient(httpClient, cfg.OASISBaseURL, limiter)

	// Fetcher registry
	registry := fetcher.NewRegistry()
	registry.Register(oasis.NewDemand(oasis.WithClient(client), oasis.WithWorkers(cfg.FetchWorkers)))
	registry.Register(oasis.NewRenewable(oasis.WithClient(client), oasis.WithWorkers(cfg.FetchWorkers)))
	registry.Register(oasis.NewTransmission(oasis.WithClient(client), oasis.WithWorkers(cfg.FetchWorkers)))

	// Services
	jobSvc := job.NewService(jobRepo)
	obsSvc := observation.NewService(obsRepo, jobRepo, registry,
		observation.WithLocation(loc),
		observation.WithSinks(sinks...),
		observation.WithPeakHours(cfg.PeakStartHour, cfg.PeakEndHour),
	)

	// Worker pool: picks up pending jobs in the background
	pool := job.NewWorkerPool(jobRepo, obsSvc, cfg.Workers, job.WithPollInterval(cfg.JobPollInterval))
	obsSvc.SetNotify(pool.Notify)
	jobSvc.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(rootCtx)
		close(poolDone)
	}()

	// Re-queue interrupted jobs so workers pick them up.
	if err := jobSvc.RecoverStaleJobs(rootCtx); err != nil {
		slog.Error("failed to recover stale jobs", "error", err)
	}
	pool.Notify()

	srv := server.New(rootCtx, cfg.Port, obsSvc, jobSvc, pool)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port, "datasets", registry.Datasets(), "timezone", loc.String(), "sinks", len(sinks))
	<-done

	// Cancel root context first so in-flight requests and fetches wind down.
	rootCancel()

	// Wait for worker pool to drain before shutting down HTTP.
	<-poolDone
	stats := pool.Stats()
	slog.Info("worker pool stopped", "claimed", stats.Claimed, "errored", stats.Errored, "panicked", stats.Panicked)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
