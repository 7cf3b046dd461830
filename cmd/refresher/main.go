// Binary refresher periodically recomputes per-job progress aggregates from
// the authoritative object scan statuses.
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
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/automaxprocs/maxprocs"

	appscanning "github.com/ahrav/pii-armada/internal/app/scanning"
	"github.com/ahrav/pii-armada/internal/config"
	scanningStore "github.com/ahrav/pii-armada/internal/infra/storage/scanning/postgres"
	"github.com/ahrav/pii-armada/pkg/common"
	"github.com/ahrav/pii-armada/pkg/common/logger"
	"github.com/ahrav/pii-armada/pkg/common/otel"
)

const serviceType = "refresher"

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

	svcName := fmt.Sprintf("REFRESHER-%s", hostname)
	log = logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadRefresher()
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
	poolCfg.MinConns = 2
	poolCfg.MaxConns = 10
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	metrics, err := appscanning.NewRefresherMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Error(ctx, "failed to create metrics", "error", err)
		os.Exit(1)
	}

	refresher := appscanning.NewProgressRefresher(
		scanningStore.NewStatusStore(pool, tracer),
		scanningStore.NewProgressStore(pool, tracer),
		cfg.RefreshInterval,
		cfg.RefreshLookback,
		metrics,
		tracer,
		log,
	)

	go func() {
		<-sigCh
		log.Info(ctx, "shutdown signal received")
		cancel()
	}()

	ready.Store(true)
	log.Info(ctx, "progress refresher started", "hostname", hostname, "run_once", cfg.RunOnce)

	if cfg.RunOnce {
		if err := refresher.RefreshOnce(ctx); err != nil {
			log.Error(ctx, "refresh failed", "error", err)
			os.Exit(1)
		}
		log.Info(ctx, "refresh complete")
		return
	}

	if err := refresher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error(ctx, "refresher terminated", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "progress refresher shutdown complete")
}
