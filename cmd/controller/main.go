package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	appscanning "github.com/avelar/facetrace/internal/app/scanning"
	"github.com/avelar/facetrace/internal/config"
	"github.com/avelar/facetrace/internal/config/fileloader"
	"github.com/avelar/facetrace/internal/infra/directory"
	"github.com/avelar/facetrace/internal/infra/dispatch"
	"github.com/avelar/facetrace/internal/infra/eventbus/kafka"
	"github.com/avelar/facetrace/internal/infra/imagefetch"
	"github.com/avelar/facetrace/internal/infra/matcher"
	"github.com/avelar/facetrace/internal/infra/search"
	scanningStore "github.com/avelar/facetrace/internal/infra/storage/scanning/postgres"
	"github.com/avelar/facetrace/pkg/common"
	"github.com/avelar/facetrace/pkg/common/logger"
	"github.com/avelar/facetrace/pkg/common/otel"
)

const serviceType = "controller"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("CONTROLLER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelDebug, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prob := 1.0
	if raw := os.Getenv("OTEL_SAMPLING_RATIO"); raw != "" {
		prob, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			log.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
	}
	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      svcName,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability: prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(svcName)

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := fileloader.NewFileLoader(cfgPath).Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}

	poolCfg, err := pgxpool.ParseConfig(postgresDSN(cfg.Postgres))
	if err != nil {
		log.Error(ctx, "failed to parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 20
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := runMigrations(ctx, pool); err != nil {
		log.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "Migrations applied successfully. Starting application...")

	metrics, err := appscanning.NewPipelineMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	kafkaClient, err := kafka.NewClient(&kafka.ClientConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.GroupID,
		ClientID:    svcName,
		ServiceType: serviceType,
	})
	if err != nil {
		log.Error(ctx, "failed to create kafka client", "error", err)
		os.Exit(1)
	}
	defer kafkaClient.Close()

	eventBus, err := kafka.ConnectEventBus(&kafka.EventBusConfig{
		Brokers:           cfg.Kafka.Brokers,
		JobRequestsTopic:  cfg.Kafka.JobRequestsTopic,
		JobLifecycleTopic: cfg.Kafka.JobLifecycleTopic,
		GroupID:           cfg.Kafka.GroupID,
		ClientID:          svcName,
		ServiceType:       serviceType,
	}, kafkaClient, log, metrics, tracer)
	if err != nil {
		log.Error(ctx, "failed to connect event bus", "error", err)
		os.Exit(1)
	}

	publisher := kafka.NewDomainEventPublisher(eventBus)

	jobStore := scanningStore.NewJobStore(pool, tracer)
	refStore := scanningStore.NewReferenceStore(pool, tracer)
	resultStore := scanningStore.NewResultStore(pool, tracer)
	accountStore := scanningStore.NewSocialAccountStore(pool, tracer)
	tokenStore := scanningStore.NewTokenStore(pool, tracer)

	fetcher := imagefetch.NewFetcher(log)
	faceMatcher := matcher.NewClient(matcher.Config{
		BaseURL: cfg.Providers.FaceMatcher.BaseURL,
		APIKey:  cfg.Providers.FaceMatcher.APIKey,
		Timeout: cfg.Providers.FaceMatcher.Timeout,
	}, log)

	searchCfg := search.Config{
		BaseURL: cfg.Providers.Search.BaseURL,
		APIKey:  cfg.Providers.Search.APIKey,
		Timeout: cfg.Providers.Search.Timeout,
	}

	// Without a configured search provider the web phase serves demo results.
	var webScanner appscanning.SourceScanner
	if searchCfg.Configured() {
		rps := cfg.Providers.SearchRPS
		if rps <= 0 {
			rps = 1
		}
		burst := cfg.Providers.SearchBurst
		if burst <= 0 {
			burst = 1
		}
		users := directory.NewClient(directory.Config{
			BaseURL: cfg.Providers.Directory.BaseURL,
			APIKey:  cfg.Providers.Directory.APIKey,
			Timeout: cfg.Providers.Directory.Timeout,
		}, log)
		webScanner = appscanning.NewWebScanner(
			search.NewClient(searchCfg, log),
			fetcher,
			faceMatcher,
			users,
			jobStore,
			resultStore,
			common.NewRateLimiter(rps, burst),
			log,
			tracer,
		)
		log.Info(ctx, "Web phase using search provider", "base_url", searchCfg.BaseURL)
	} else {
		webScanner = appscanning.NewDemoScanner(jobStore, resultStore, log, tracer)
		log.Info(ctx, "Search provider not configured, web phase serves demo results")
	}

	socialScanner := appscanning.NewSocialScanner(
		accountStore,
		fetcher,
		faceMatcher,
		jobStore,
		resultStore,
		log,
		tracer,
	)

	orchestrator := appscanning.NewOrchestrator(
		hostname,
		jobStore,
		refStore,
		resultStore,
		webScanner,
		socialScanner,
		publisher,
		log,
		tracer,
		metrics,
	)

	dispatchCfg := dispatch.DefaultConfig()
	if cfg.Dispatcher.MaxAttempts > 0 {
		dispatchCfg.MaxAttempts = cfg.Dispatcher.MaxAttempts
	}
	if cfg.Dispatcher.InitialBackoff > 0 {
		dispatchCfg.InitialBackoff = cfg.Dispatcher.InitialBackoff
	}
	dispatcher := dispatch.NewDispatcher(dispatchCfg, eventBus, orchestrator, tokenStore, log, tracer)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready, func() any { return dispatcher.Health() })
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	log.Info(ctx, "Controller initialized")
	ready.Store(true)

	errCh := make(chan error, 1)
	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info(ctx, "Received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := eventBus.Close(); err != nil {
			log.Error(shutdownCtx, "Failed to close event bus", "error", err)
		}

	case err := <-errCh:
		if ctx.Err() == nil {
			log.Error(ctx, "Dispatcher error", "error", err)
			os.Exit(1)
		}
	}
}

func postgresDSN(cfg config.PostgresConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database)
}

// runMigrations acquires a single pgx connection from the pool, applies all up
// migrations, and releases the connection back to the pool.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("could not acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(pool)

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create pgx driver: %w", err)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "file://db/migrations"
	}
	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}
