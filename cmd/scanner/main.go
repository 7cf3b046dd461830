// Binary scanner is the queue-driven scan worker: it consumes scan-job
// messages, fetches and scans the referenced objects, and persists outcomes.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/automaxprocs/maxprocs"

	appscanning "github.com/ahrav/pii-armada/internal/app/scanning"
	"github.com/ahrav/pii-armada/internal/config"
	"github.com/ahrav/pii-armada/internal/detect"
	objstores3 "github.com/ahrav/pii-armada/internal/infra/objstore/s3"
	queuesqs "github.com/ahrav/pii-armada/internal/infra/queue/sqs"
	scanningStore "github.com/ahrav/pii-armada/internal/infra/storage/scanning/postgres"
	"github.com/ahrav/pii-armada/pkg/common"
	"github.com/ahrav/pii-armada/pkg/common/logger"
	"github.com/ahrav/pii-armada/pkg/common/otel"
)

const serviceType = "scanner"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

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

	traceIDFn := func(ctx context.Context) string { return otel.GetTraceID(ctx) }

	svcName := fmt.Sprintf("SCANNER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log = logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadScanner()
	if err != nil {
		log.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	prob := 0.1
	if v := os.Getenv("OTEL_SAMPLING_RATIO"); v != "" {
		if prob, err = strconv.ParseFloat(v, 64); err != nil {
			log.Error(ctx, "failed to parse OTEL_SAMPLING_RATIO", "error", err)
			os.Exit(1)
		}
	}
	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Probability:      prob,
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

	tracer := tp.Tracer(serviceType)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "error shutting down health server", "error", err)
		}
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
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

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Error(ctx, "failed to load aws config", "error", err)
		os.Exit(1)
	}

	queue := queuesqs.NewQueue(queuesqs.NewClient(awsCfg, cfg.SQSEndpoint), cfg.QueueURL, tracer, log)
	objectStore := objstores3.NewStore(objstores3.NewClient(awsCfg, cfg.S3Endpoint), tracer)

	metrics, err := appscanning.NewWorkerMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Error(ctx, "failed to create metrics", "error", err)
		os.Exit(1)
	}

	statusRepo := scanningStore.NewStatusStore(pool, tracer)
	writer := appscanning.NewResultWriter(statusRepo, tracer, log)
	fetcher := appscanning.NewObjectFetcher(objectStore, appscanning.NewObjectFilter(cfg.MaxFileSize), tracer, log)
	processor := appscanning.NewBatchProcessor(
		fetcher,
		detect.NewEngine(),
		writer,
		cfg.MaxWorkers,
		cfg.MessageTimeout,
		metrics,
		tracer,
		log,
	)
	poller := appscanning.NewQueuePoller(queue, processor, writer, appscanning.QueuePollerConfig{
		BatchSize:       cfg.BatchSize,
		ReceiveWait:     cfg.ReceiveWait,
		RequeueDelay:    cfg.RequeueDelay,
		MaxReceiveCount: cfg.MaxReceiveCount,
	}, metrics, tracer, log)

	go func() {
		<-sigCh
		log.Info(ctx, "shutdown signal received")
		cancel()
	}()

	ready.Store(true)
	log.Info(ctx, "scan worker started", "hostname", hostname, "queue_url", cfg.QueueURL)

	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error(ctx, "poller terminated", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "scan worker shutdown complete")
}

// runMigrations applies all up migrations from db/migrations using a
// database/sql handle borrowed from the pool.
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
		migrationsPath = "file:///app/db/migrations"
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
