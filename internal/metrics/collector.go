package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventProbeCompleted EventType = "probe_completed"
	EventTickSkipped    EventType = "tick_skipped"
	EventOutsideWindow  EventType = "outside_window"
	EventStaleDiscarded EventType = "stale_discarded"
	EventSchedulerFault EventType = "scheduler_fault"
)

type Event struct {
	Type       EventType
	Timestamp  time.Time
	MonitorID  string
	Latency    time.Duration
	HasLatency bool
	Success    bool
}

type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- Event {
	return c.eventCh
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventProbeCompleted:
		c.metrics.RecordProbe(event.MonitorID, event.Success, event.Latency, event.HasLatency)

	case EventTickSkipped:
		c.metrics.RecordSkippedBusy(event.MonitorID)

	case EventOutsideWindow:
		c.metrics.RecordOutsideWindow(event.MonitorID)

	case EventStaleDiscarded:
		c.metrics.RecordStaleDiscarded(event.MonitorID)

	case EventSchedulerFault:
		c.metrics.RecordFault(event.MonitorID)

	default:
		c.logger.Debug("Ignoring unknown metric event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}

// Emit sends event without blocking; a nil channel or a full buffer drops it.
func Emit(ch chan<- Event, event Event) {
	if ch == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case ch <- event:
	default:
	}
}
