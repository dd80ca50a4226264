// Package service is the registry surface offered to consumers. It
// serialises mutations and keeps the registry, scheduler, log store and
// status aggregator consistent with each other.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/angeloszaimis/window-monitor/internal/logstore"
	"github.com/angeloszaimis/window-monitor/internal/monitor"
	"github.com/angeloszaimis/window-monitor/internal/registry"
	"github.com/angeloszaimis/window-monitor/internal/scheduler"
	"github.com/angeloszaimis/window-monitor/internal/snapshot"
	"github.com/angeloszaimis/window-monitor/internal/status"
)

type Deps struct {
	Registry  *registry.Registry
	Scheduler *scheduler.Scheduler
	Logs      *logstore.Store
	Statuses  *status.Aggregator
	Logger    *slog.Logger
}

type MonitorService struct {
	mutex     sync.Mutex
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	logs      *logstore.Store
	statuses  *status.Aggregator
	logger    *slog.Logger

	// monitors running when Close was called; Enabled reports this set
	// afterwards so a final snapshot keeps them enabled.
	runningAtClose atomic.Pointer[map[string]bool]
}

func New(deps Deps) *MonitorService {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &MonitorService{
		registry:  deps.Registry,
		scheduler: deps.Scheduler,
		logs:      deps.Logs,
		statuses:  deps.Statuses,
		logger:    deps.Logger,
	}
}

// Add registers a monitor and starts it when the draft asks for it. If the
// start fails the registration is undone.
func (s *MonitorService) Add(d monitor.Draft) (monitor.Monitor, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m, err := s.registry.Add(d)
	if err != nil {
		return monitor.Monitor{}, err
	}

	if d.Enabled {
		if err := s.scheduler.Start(m.ID); err != nil {
			s.registry.Withdraw(m.ID)
			_ = s.scheduler.Forget(m.ID)
			return monitor.Monitor{}, fmt.Errorf("start monitor %q: %w", m.ID, err)
		}
	}

	s.logger.Info("Monitor added", slog.String("monitor", m.ID), slog.String("name", m.Name))
	return s.decorate(m), nil
}

// Update patches a monitor. A running monitor whose schedule-relevant
// fields changed is reconfigured so no stale timer survives.
func (s *MonitorService) Update(id string, p monitor.Patch) (monitor.Monitor, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m, rescheduled, err := s.registry.Update(id, p)
	if err != nil {
		return monitor.Monitor{}, err
	}

	if rescheduled && s.isRunning(id) {
		if err := s.scheduler.Reconfigure(id); err != nil {
			return s.decorate(m), fmt.Errorf("reconfigure monitor %q: %w", id, err)
		}
		s.logger.Info("Monitor reconfigured", slog.String("monitor", id))
	}
	return s.decorate(m), nil
}

// Remove stops and deletes a monitor together with its history. The last
// remaining monitor, or one whose task cannot be stopped cleanly, is kept.
func (s *MonitorService) Remove(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.registry.CheckRemovable(id); err != nil {
		return err
	}
	if err := s.scheduler.Stop(id); err != nil {
		return monitor.NewValidationError(fmt.Errorf("monitor cannot be cleanly stopped: %w", err))
	}
	if err := s.registry.Remove(id); err != nil {
		return err
	}
	if err := s.scheduler.Forget(id); err != nil {
		return err
	}

	s.logs.Forget(id)
	s.statuses.Forget(id)
	s.logger.Info("Monitor removed", slog.String("monitor", id))
	return nil
}

func (s *MonitorService) Get(id string) (monitor.Monitor, error) {
	m, err := s.registry.Get(id)
	if err != nil {
		return monitor.Monitor{}, err
	}
	return s.decorate(m), nil
}

// List returns every monitor in insertion order with runtime fields set.
func (s *MonitorService) List() []monitor.Monitor {
	monitors := s.registry.List()
	for i := range monitors {
		monitors[i] = s.decorate(monitors[i])
	}
	return monitors
}

func (s *MonitorService) Start(id string) (monitor.Monitor, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m, err := s.registry.Get(id)
	if err != nil {
		return monitor.Monitor{}, err
	}
	if err := s.scheduler.Start(id); err != nil {
		return monitor.Monitor{}, err
	}
	return s.decorate(m), nil
}

func (s *MonitorService) Stop(id string) (monitor.Monitor, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stopLocked(id)
}

func (s *MonitorService) stopLocked(id string) (monitor.Monitor, error) {
	m, err := s.registry.Get(id)
	if err != nil {
		return monitor.Monitor{}, err
	}
	if err := s.scheduler.Stop(id); err != nil {
		return s.decorate(m), err
	}
	return s.decorate(m), nil
}

// Toggle starts a stopped monitor or stops a running one.
func (s *MonitorService) Toggle(id string) (monitor.Monitor, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	m, err := s.registry.Get(id)
	if err != nil {
		return monitor.Monitor{}, err
	}
	if s.isRunning(id) {
		return s.stopLocked(id)
	}
	if err := s.scheduler.Start(id); err != nil {
		return monitor.Monitor{}, err
	}
	return s.decorate(m), nil
}

func (s *MonitorService) Status(id string) (monitor.Status, error) {
	if _, err := s.registry.Get(id); err != nil {
		return monitor.StatusUnknown, err
	}
	return s.statuses.GetStatus(id), nil
}

// Latest returns the most recent probe result of id, if any.
func (s *MonitorService) Latest(id string) (monitor.ProbeResult, bool, error) {
	if _, err := s.registry.Get(id); err != nil {
		return monitor.ProbeResult{}, false, err
	}
	result, ok := s.statuses.Latest(id)
	return result, ok, nil
}

func (s *MonitorService) RecentLogs(id string, limit int) ([]monitor.ProbeResult, error) {
	if _, err := s.registry.Get(id); err != nil {
		return nil, err
	}
	return s.logs.Recent(id, limit), nil
}

func (s *MonitorService) Subscribe(buffer int) (<-chan status.Event, func()) {
	return s.statuses.Subscribe(buffer)
}

// Snapshot captures configurations and history for persistence.
func (s *MonitorService) Snapshot() snapshot.State {
	monitors := s.List()
	state := snapshot.State{Monitors: make([]snapshot.MonitorState, 0, len(monitors))}
	for _, m := range monitors {
		state.Monitors = append(state.Monitors, snapshot.MonitorState{
			Monitor: m,
			Recent:  s.logs.Recent(m.ID, 0),
		})
	}
	return state
}

// Restore loads a snapshot into an empty service and restarts the monitors
// that were enabled. Invalid entries are skipped and reported together.
func (s *MonitorService) Restore(state snapshot.State) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var errs []error
	for _, ms := range state.Monitors {
		m := ms.Monitor
		if err := s.registry.Restore(m); err != nil {
			s.logger.Warn("Skipping snapshot monitor",
				slog.String("monitor", m.ID),
				slog.Any("err", err))
			errs = append(errs, fmt.Errorf("monitor %q: %w", m.ID, err))
			continue
		}

		s.logs.Restore(m.ID, ms.Recent)
		if len(ms.Recent) > 0 {
			s.statuses.OnProbeResult(ms.Recent[0])
		}

		if m.Enabled {
			if err := s.scheduler.Start(m.ID); err != nil {
				errs = append(errs, fmt.Errorf("start monitor %q: %w", m.ID, err))
			}
		}
	}

	s.logger.Info("Snapshot restored", slog.Int("monitors", s.registry.Len()))
	return errors.Join(errs...)
}

// Close stops every monitor and waits for in-flight probes. Later calls are
// no-ops.
func (s *MonitorService) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.runningAtClose.Load() != nil {
		return
	}
	running := make(map[string]bool)
	for _, id := range s.scheduler.Running() {
		running[id] = true
	}
	s.runningAtClose.Store(&running)
	s.scheduler.Shutdown()
}

func (s *MonitorService) isRunning(id string) bool {
	if running := s.runningAtClose.Load(); running != nil {
		return (*running)[id]
	}
	return s.scheduler.IsRunning(id)
}

func (s *MonitorService) decorate(m monitor.Monitor) monitor.Monitor {
	m.Enabled = s.isRunning(m.ID)
	m.LastStatus = s.statuses.GetStatus(m.ID)
	return m
}
