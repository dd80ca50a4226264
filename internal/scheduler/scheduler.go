package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/window-monitor/internal/metrics"
	"github.com/angeloszaimis/window-monitor/internal/monitor"
	"github.com/angeloszaimis/window-monitor/internal/schedule"
)

const DefaultStopTimeout = 5 * time.Second

// Lookup gives each tick a fresh copy of the monitor's configuration.
type Lookup interface {
	Get(id string) (monitor.Monitor, error)
}

// Executor performs one probe.
type Executor interface {
	Execute(ctx context.Context, m monitor.Monitor) monitor.ProbeResult
}

type LogAppender interface {
	Append(result monitor.ProbeResult)
}

type StatusUpdater interface {
	OnProbeResult(result monitor.ProbeResult)
}

// Deps wires a Scheduler. Monitors, Executor, Logs and Statuses are required.
type Deps struct {
	Monitors  Lookup
	Executor  Executor
	Logs      LogAppender
	Statuses  StatusUpdater
	Evaluator *schedule.Evaluator
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Events    chan<- metrics.Event

	// StopTimeout bounds how long Stop waits for a task to exit.
	StopTimeout time.Duration
}

type worker struct {
	id         string
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	// guarded by Scheduler.mutex
	inFlight bool
}

type Scheduler struct {
	deps    Deps
	baseCtx context.Context

	mutex       sync.Mutex
	workers     map[string]*worker
	generations map[string]uint64
	closed      bool

	wg sync.WaitGroup
}

// New returns a scheduler whose tasks live at most as long as ctx.
func New(ctx context.Context, deps Deps) *Scheduler {
	if deps.Evaluator == nil {
		deps.Evaluator = schedule.NewEvaluator(nil)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.StopTimeout <= 0 {
		deps.StopTimeout = DefaultStopTimeout
	}

	return &Scheduler{
		deps:        deps,
		baseCtx:     ctx,
		workers:     make(map[string]*worker),
		generations: make(map[string]uint64),
	}
}

// Start moves the monitor to Running: it probes immediately, subject to the
// window, then every interval. Starting a running monitor is a no-op.
func (s *Scheduler) Start(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, running := s.workers[id]; running {
		return nil
	}
	return s.spawnLocked(id)
}

// Stop cancels the monitor's timer and invalidates any probe in flight. It
// is idempotent. A Fault is returned when the task does not exit within
// the stop timeout.
func (s *Scheduler) Stop(id string) error {
	s.mutex.Lock()
	w := s.stopLocked(id)
	s.mutex.Unlock()

	if w == nil {
		return nil
	}
	return s.awaitExit(w)
}

// Reconfigure restarts the monitor with its current configuration so a new
// interval or window takes effect immediately.
func (s *Scheduler) Reconfigure(id string) error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrClosed
	}
	old := s.stopLocked(id)
	err := s.spawnLocked(id)
	s.mutex.Unlock()

	if old != nil {
		if waitErr := s.awaitExit(old); waitErr != nil {
			return waitErr
		}
	}
	return err
}

// Forget stops the monitor and drops its generation counter. Call it once
// the monitor has left the registry.
func (s *Scheduler) Forget(id string) error {
	if err := s.Stop(id); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, running := s.workers[id]; !running {
		delete(s.generations, id)
	}
	return nil
}

func (s *Scheduler) IsRunning(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, running := s.workers[id]
	return running
}

// Running lists the ids of running monitors.
func (s *Scheduler) Running() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every monitor and waits for their tasks and in-flight
// probes to finish.
func (s *Scheduler) Shutdown() {
	s.mutex.Lock()
	s.closed = true
	for id := range s.workers {
		s.stopLocked(id)
	}
	s.mutex.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) spawnLocked(id string) error {
	m, err := s.deps.Monitors.Get(id)
	if err != nil {
		return err
	}
	if m.IntervalSeconds <= 0 {
		return monitor.NewValidationError(fmt.Errorf("interval_seconds must be positive"))
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	w := &worker{
		id:         id,
		generation: s.generations[id],
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.workers[id] = w

	s.deps.Logger.Info("Monitor started",
		slog.String("monitor", id),
		slog.Int("interval_seconds", m.IntervalSeconds),
		slog.Uint64("generation", w.generation))

	s.wg.Add(1)
	go s.run(w, m.Interval())
	return nil
}

// stopLocked bumps the generation, cancels the task and returns it, or nil
// when the monitor was not running.
func (s *Scheduler) stopLocked(id string) *worker {
	s.generations[id]++

	w, running := s.workers[id]
	if !running {
		return nil
	}
	w.cancel()
	delete(s.workers, id)

	s.deps.Logger.Info("Monitor stopped", slog.String("monitor", id))
	return w
}

func (s *Scheduler) awaitExit(w *worker) error {
	timer := time.NewTimer(s.deps.StopTimeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-timer.C:
		return &Fault{MonitorID: w.id, Err: errors.New("task did not exit before the stop timeout")}
	}
}

func (s *Scheduler) run(w *worker, interval time.Duration) {
	defer s.wg.Done()
	defer close(w.done)

	s.tick(w)

	ticker := s.deps.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.Chan():
			s.tick(w)
		}
	}
}

// tick gates one probe: it is skipped while a probe is in flight or when the
// monitor is outside its window.
func (s *Scheduler) tick(w *worker) {
	proceed, err := s.begin(w)
	if err != nil {
		s.fault(w, err)
		return
	}
	if !proceed {
		return
	}

	m, err := s.deps.Monitors.Get(w.id)
	if err != nil {
		s.finish(w)
		s.fault(w, fmt.Errorf("configuration lookup failed: %w", err))
		return
	}

	now := s.deps.Clock.Now()
	if !s.deps.Evaluator.IsActiveNow(m, now) {
		s.finish(w)
		s.deps.Logger.Debug("Outside polling window",
			slog.String("monitor", w.id),
			slog.Time("now", now))
		s.emit(metrics.Event{Type: metrics.EventOutsideWindow, MonitorID: w.id})
		return
	}

	s.wg.Add(1)
	go s.probe(w, m)
}

// begin marks a probe in flight. It returns false without error when the
// tick must be skipped and a Fault when the task is running for a
// superseded generation.
func (s *Scheduler) begin(w *worker) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if w.ctx.Err() != nil {
		return false, nil
	}
	if current := s.generations[w.id]; current != w.generation {
		return false, fmt.Errorf("tick for generation %d while current is %d", w.generation, current)
	}
	if w.inFlight {
		s.deps.Logger.Debug("Probe still in flight, skipping tick", slog.String("monitor", w.id))
		s.emit(metrics.Event{Type: metrics.EventTickSkipped, MonitorID: w.id})
		return false, nil
	}

	w.inFlight = true
	return true, nil
}

func (s *Scheduler) finish(w *worker) {
	s.mutex.Lock()
	w.inFlight = false
	s.mutex.Unlock()
}

func (s *Scheduler) probe(w *worker, m monitor.Monitor) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.finish(w)
			s.fault(w, fmt.Errorf("probe panicked: %v", r))
		}
	}()

	result := s.deps.Executor.Execute(w.ctx, m)
	s.apply(w, result)
}

// apply routes result to the log store and status aggregator unless the
// probe belongs to a superseded generation.
func (s *Scheduler) apply(w *worker, result monitor.ProbeResult) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	w.inFlight = false

	if current, ok := s.workers[w.id]; !ok || current != w || s.generations[w.id] != w.generation {
		s.deps.Logger.Debug("Discarding stale probe result",
			slog.String("monitor", w.id),
			slog.Uint64("generation", w.generation))
		s.emit(metrics.Event{Type: metrics.EventStaleDiscarded, MonitorID: w.id})
		return
	}

	s.deps.Logs.Append(result)
	s.deps.Statuses.OnProbeResult(result)

	latency, hasLatency := result.Latency()
	s.emit(metrics.Event{
		Type:       metrics.EventProbeCompleted,
		MonitorID:  w.id,
		Latency:    latency,
		HasLatency: hasLatency,
		Success:    result.Status == monitor.StatusSuccess,
	})

	if result.Status == monitor.StatusSuccess {
		s.deps.Logger.Debug("Probe succeeded",
			slog.String("monitor", w.id),
			slog.Duration("latency", latency))
	} else {
		s.deps.Logger.Warn("Probe failed",
			slog.String("monitor", w.id),
			slog.String("url", result.URLSnapshot),
			slog.String("error", result.ErrorMessage))
	}
}

// fault stops only the affected monitor. It runs on the task's own
// goroutine, so it never waits for the task to exit.
func (s *Scheduler) fault(w *worker, err error) {
	f := &Fault{MonitorID: w.id, Err: err}

	s.mutex.Lock()
	if current, ok := s.workers[w.id]; ok && current == w {
		s.stopLocked(w.id)
	} else {
		w.cancel()
	}
	s.mutex.Unlock()

	s.deps.Logger.Error("Scheduler fault, monitor stopped",
		slog.String("monitor", w.id),
		slog.Any("err", f))
	s.emit(metrics.Event{Type: metrics.EventSchedulerFault, MonitorID: w.id})
}

func (s *Scheduler) emit(event metrics.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.deps.Clock.Now()
	}
	metrics.Emit(s.deps.Events, event)
}
