package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/avelar/facetrace/internal/api"
	appscanning "github.com/avelar/facetrace/internal/app/scanning"
	"github.com/avelar/facetrace/internal/config"
	"github.com/avelar/facetrace/internal/config/fileloader"
	"github.com/avelar/facetrace/internal/infra/eventbus/kafka"
	scanningStore "github.com/avelar/facetrace/internal/infra/storage/scanning/postgres"
	"github.com/avelar/facetrace/pkg/common"
	"github.com/avelar/facetrace/pkg/common/logger"
	"github.com/avelar/facetrace/pkg/common/otel"
)

const serviceType = "api"

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

	svcName := fmt.Sprintf("API-%s", hostname)
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
	poolCfg.MinConns = 2
	poolCfg.MaxConns = 10
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	metrics, err := appscanning.NewPipelineMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	kafkaClient, err := kafka.NewClient(&kafka.ClientConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     fmt.Sprintf("api-%s", hostname),
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
		GroupID:           fmt.Sprintf("api-%s", hostname),
		ClientID:          svcName,
		ServiceType:       serviceType,
	}, kafkaClient, log, metrics, tracer)
	if err != nil {
		log.Error(ctx, "failed to connect event bus", "error", err)
		os.Exit(1)
	}

	publisher := kafka.NewDomainEventPublisher(eventBus)

	jobStore := scanningStore.NewJobStore(pool, tracer)
	resultStore := scanningStore.NewResultStore(pool, tracer)
	tokenStore := scanningStore.NewTokenStore(pool, tracer)

	jobService := appscanning.NewJobService(jobStore, resultStore, tokenStore, publisher, log, tracer)

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewServer(log, tracer, jobService),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready, nil)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "API listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	ready.Store(true)

	select {
	case sig := <-sigCh:
		log.Info(ctx, "Received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error(shutdownCtx, "Failed to shut down API server", "error", err)
		}
		if err := eventBus.Close(); err != nil {
			log.Error(shutdownCtx, "Failed to close event bus", "error", err)
		}

	case err := <-errCh:
		log.Error(ctx, "API server error", "error", err)
		os.Exit(1)
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
