// Command incidentgen runs the incident event generator service: an HTTP
// control surface that starts and stops a rate-governed sharded producer
// pool and an optional repair scheduler against a Postgres-backed store.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaymesh/incidentforge/internal/bus"
	"github.com/relaymesh/incidentforge/internal/catalog"
	"github.com/relaymesh/incidentforge/internal/config"
	"github.com/relaymesh/incidentforge/internal/grpchealth"
	"github.com/relaymesh/incidentforge/internal/httpapi"
	"github.com/relaymesh/incidentforge/internal/producer"
	"github.com/relaymesh/incidentforge/internal/repair"
	"github.com/relaymesh/incidentforge/internal/runstate"
	"github.com/relaymesh/incidentforge/internal/store"
	"github.com/relaymesh/incidentforge/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "incidentgen:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	shutdownTelemetry, err := setupTelemetry(ctx)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	st, err := store.Open(ctx, cfg.StoreURI, store.Options{
		IncidentsTable: cfg.IncidentsTable,
		RepairsTable:   cfg.RepairsTable,
		RepairTTLDays:  cfg.RepairTTLDays,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	eventBus, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	defer eventBus.Close()

	limits := producer.Limits{MaxRate: cfg.MaxRate, MaxBatch: cfg.MaxBatch, MaxShards: cfg.MaxShards}
	pool := producer.New(st, cat, eventBus, cfg.MovingAverageWindowSec, limits)
	scheduler := repair.New(st, eventBus)
	controller := runstate.New(st, pool, scheduler)

	if cfg.RepairTTLDays > 0 {
		go runRepairPruner(ctx, st, time.Hour)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ControlPort),
		Handler: httpapi.New(controller, st, cfg.AllowedOrigin).Handler(),
	}

	healthSrv := grpchealth.New(grpchealth.ServerHandler())
	healthSrv.SetServing()

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCHealthPort))
	if err != nil {
		return fmt.Errorf("listen grpc health: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := healthSrv.GRPCServer().Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc health server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	healthSrv.SetNotServing()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_, _ = controller.Stop(shutdownCtx)
	_ = httpSrv.Shutdown(shutdownCtx)
	healthSrv.GracefulStop()

	return nil
}

// runRepairPruner periodically removes repair rows past the configured TTL,
// standing in for the Mongo TTL index spec.md's persisted-state layout calls
// for (see DESIGN.md). Runs until ctx is cancelled.
func runRepairPruner(ctx context.Context, st store.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := st.PruneExpiredRepairs(ctx)
			if err != nil {
				telemetry.EmitWarn(ctx, "incidentgen: prune expired repairs failed")
				continue
			}
			if removed > 0 {
				telemetry.EmitInfo(ctx, "incidentgen: pruned expired repairs")
			}
		}
	}
}

// setupTelemetry initializes the tracer, logger, and meter providers from
// environment configuration. Telemetry is opt-in: when disabled, this
// leaves the globally registered no-op providers in place and returns a
// no-op shutdown function, matching how the engine treats a disabled
// logger/meter provider as non-fatal.
func setupTelemetry(ctx context.Context) (func(context.Context), error) {
	telCfg, err := telemetry.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load telemetry config: %w", err)
	}

	if !telCfg.IsEnabled() {
		return func(context.Context) {}, nil
	}

	tp, err := telemetry.NewTracerProvider(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}
	telemetry.InitTracing(tp.Tracer("incidentgen"), telemetry.DefaultNamer{})

	var shutdowns []func(context.Context) error
	shutdowns = append(shutdowns, tp.Shutdown)

	if lp, err := telemetry.NewLoggerProvider(ctx, telCfg); err == nil {
		shutdowns = append(shutdowns, lp.Shutdown)
	} else if err != telemetry.ErrLogsDisabled {
		fmt.Fprintln(os.Stderr, "incidentgen: logger provider disabled:", err)
	}

	if mp, err := telemetry.NewMeterProvider(ctx, telCfg); err == nil {
		shutdowns = append(shutdowns, mp.Shutdown)
	} else if err != telemetry.ErrMetricsDisabled {
		fmt.Fprintln(os.Stderr, "incidentgen: meter provider disabled:", err)
	}

	return func(ctx context.Context) {
		for _, shutdown := range shutdowns {
			_ = shutdown(ctx)
		}
	}, nil
}
