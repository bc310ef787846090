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

	"github.com/apiprobe-labs/apiprobe-go/internal/events"
	"github.com/apiprobe-labs/apiprobe-go/internal/execution"
	"github.com/apiprobe-labs/apiprobe-go/internal/generator"
	"github.com/apiprobe-labs/apiprobe-go/internal/platform/env"
	"github.com/apiprobe-labs/apiprobe-go/internal/platform/httpserver"
	"github.com/apiprobe-labs/apiprobe-go/internal/platform/objectstore"
	"github.com/apiprobe-labs/apiprobe-go/internal/platform/postgres"
	repopg "github.com/apiprobe-labs/apiprobe-go/internal/repo/postgres"
	"github.com/apiprobe-labs/apiprobe-go/internal/report"
	"github.com/apiprobe-labs/apiprobe-go/internal/service/packages"
	"github.com/apiprobe-labs/apiprobe-go/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("ENGINE_HTTP_ADDR", ":8090")
	shutdownTimeout, err := env.Duration("ENGINE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBucket(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	transportCfg, err := transport.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid transport config", "error", err)
		os.Exit(2)
	}
	client, err := transport.NewHTTPClient(transportCfg)
	if err != nil {
		logger.Error("transport client init failed", "error", err)
		os.Exit(2)
	}

	packageStore := repopg.NewPackageStore(db)
	scenarioStore := repopg.NewScenarioStore(db)
	runStore := repopg.NewRunStore(db)
	stepResultStore := repopg.NewStepResultStore(db)

	sink := events.NewPostgresSink(db, logger, 0)
	executor := execution.NewStepExecutor(client, stepResultStore, logger)
	orchestrator := execution.NewOrchestrator(runStore, executor, sink, logger)
	packageService := packages.New(packageStore, sink, logger)
	archiver := report.NewArchiver(storeClient, storeCfg.BucketReports, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("engine"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"engine",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBucket(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	api := newEngineAPI(
		logger,
		packageService,
		packageStore,
		scenarioStore,
		runStore,
		stepResultStore,
		orchestrator,
		generator.NewValidated(generator.Heuristic{}),
		archiver,
	)
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "engine",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "engine", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
