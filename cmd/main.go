package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/window-monitor/config"
	"github.com/angeloszaimis/window-monitor/internal/api"
	"github.com/angeloszaimis/window-monitor/internal/httpserver"
	"github.com/angeloszaimis/window-monitor/internal/logstore"
	"github.com/angeloszaimis/window-monitor/internal/metrics"
	"github.com/angeloszaimis/window-monitor/internal/probe"
	"github.com/angeloszaimis/window-monitor/internal/registry"
	"github.com/angeloszaimis/window-monitor/internal/schedule"
	"github.com/angeloszaimis/window-monitor/internal/scheduler"
	"github.com/angeloszaimis/window-monitor/internal/service"
	"github.com/angeloszaimis/window-monitor/internal/snapshot"
	"github.com/angeloszaimis/window-monitor/internal/status"
	"github.com/angeloszaimis/window-monitor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		AddSource:   true,
		Environment: cfg.Server.Environment,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(cfg.Metrics.Buffer, log)
	collector.Start(ctx)

	clock := clockwork.NewRealClock()
	svc, err := buildService(ctx, cfg, log, clock, collector.EventChannel())
	if err != nil {
		log.Error("Failed to build monitor service", slog.Any("err", err))
		os.Exit(1)
	}

	if err := bootstrap(svc, cfg, log); err != nil {
		log.Error("Failed to load monitors", slog.Any("err", err))
		svc.Close()
		os.Exit(1)
	}

	handler := api.New(svc, log, cfg.Notifications.Buffer)
	srv, err := httpserver.New(cfg.Server.Address, api.WithLogging(log, setupRouter(handler, collector)))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		svc.Close()
		os.Exit(1)
	}

	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		persist(ctx, clock, cfg.Persistence, svc, log)
	}()

	srvErrCh := make(chan error, 1)
	go func() {
		log.Info("Listening", slog.String("addr", srv.Addr()))
		srvErrCh <- srv.Start()
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting monitor API", slog.Any("err", err))
			exitCode = 1
		}
		cancel()
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		log.Error("Error during shutdown", slog.Any("err", err))
	}
	svc.Close()
	<-persistDone
	if err := saveSnapshot(cfg.Persistence.SnapshotPath, svc); err != nil {
		log.Error("Final snapshot failed", slog.Any("err", err))
		exitCode = 1
	}

	os.Exit(exitCode)
}

func buildService(ctx context.Context, cfg *config.Config, log *slog.Logger, clock clockwork.Clock, events chan<- metrics.Event) (*service.MonitorService, error) {
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, fmt.Errorf("schedule time zone: %w", err)
	}

	reg := registry.New()
	logs := logstore.New(cfg.LogStore.Capacity)
	statuses := status.NewAggregator()

	sched := scheduler.New(ctx, scheduler.Deps{
		Monitors: reg,
		Executor: probe.New(probe.Options{
			MaxTimeout: cfg.Probe.Timeout(),
			UserAgent:  cfg.Probe.UserAgent,
			Clock:      clock,
		}),
		Logs:      logs,
		Statuses:  statuses,
		Evaluator: schedule.NewEvaluator(loc),
		Clock:     clock,
		Logger:    log,
		Events:    events,
	})

	return service.New(service.Deps{
		Registry:  reg,
		Scheduler: sched,
		Logs:      logs,
		Statuses:  statuses,
		Logger:    log,
	}), nil
}

// bootstrap restores the last snapshot, or adds the seed monitors from the
// configuration when there is none.
func bootstrap(svc *service.MonitorService, cfg *config.Config, log *slog.Logger) error {
	if path := cfg.Persistence.SnapshotPath; path != "" {
		state, err := snapshot.Load(path)
		if err != nil {
			return err
		}
		if len(state.Monitors) > 0 {
			if err := svc.Restore(state); err != nil {
				// partial restores keep the monitors that were valid
				log.Warn("Snapshot restored with errors", slog.Any("err", err))
			}
			return nil
		}
	}

	for _, seed := range cfg.Monitors {
		d, err := seed.Draft()
		if err != nil {
			return fmt.Errorf("seed monitor %q: %w", seed.Name, err)
		}
		if _, err := svc.Add(d); err != nil {
			return fmt.Errorf("seed monitor %q: %w", seed.Name, err)
		}
	}
	log.Info("Seed monitors added", slog.Int("count", len(cfg.Monitors)))
	return nil
}

// persist saves a snapshot every flush interval until ctx is done.
func persist(ctx context.Context, clock clockwork.Clock, cfg config.PersistenceConfig, svc *service.MonitorService, log *slog.Logger) {
	if cfg.SnapshotPath == "" {
		return
	}
	interval := cfg.Interval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := saveSnapshot(cfg.SnapshotPath, svc); err != nil {
				log.Error("Snapshot failed", slog.Any("err", err))
				continue
			}
			log.Debug("Snapshot saved", slog.String("path", cfg.SnapshotPath))
		}
	}
}

func saveSnapshot(path string, svc *service.MonitorService) error {
	if path == "" {
		return nil
	}
	if err := snapshot.Save(path, svc.Snapshot()); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	return nil
}
