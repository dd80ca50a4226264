package status

import (
	"sync"
	"time"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

// Event announces a change of a monitor's status.
type Event struct {
	MonitorID    string         `json:"monitor_id"`
	Previous     monitor.Status `json:"previous"`
	Current      monitor.Status `json:"current"`
	At           time.Time      `json:"at"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Aggregator tracks the latest probe result per monitor.
type Aggregator struct {
	mutex       sync.RWMutex
	latest      map[string]monitor.ProbeResult
	subscribers map[*subscriber]struct{}
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latest:      make(map[string]monitor.ProbeResult),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// OnProbeResult makes result the monitor's most recent outcome.
func (a *Aggregator) OnProbeResult(result monitor.ProbeResult) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	previous := monitor.StatusUnknown
	if last, ok := a.latest[result.MonitorID]; ok {
		previous = last.Status
	}
	a.latest[result.MonitorID] = result

	if previous == result.Status {
		return
	}

	a.publishLocked(Event{
		MonitorID:    result.MonitorID,
		Previous:     previous,
		Current:      result.Status,
		At:           result.Timestamp,
		ErrorMessage: result.ErrorMessage,
	})
}

// GetStatus returns StatusUnknown until a result for id has been recorded.
func (a *Aggregator) GetStatus(id string) monitor.Status {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if last, ok := a.latest[id]; ok {
		return last.Status
	}
	return monitor.StatusUnknown
}

// Latest returns the most recent result for id.
func (a *Aggregator) Latest(id string) (monitor.ProbeResult, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	last, ok := a.latest[id]
	return last, ok
}

// Forget drops the status of id. No event is emitted.
func (a *Aggregator) Forget(id string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.latest, id)
}

// Subscribe registers a listener with the given channel buffer. The returned
// cancel func unregisters it and closes the channel; it may be called more
// than once.
func (a *Aggregator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	sub := &subscriber{ch: make(chan Event, buffer)}

	a.mutex.Lock()
	a.subscribers[sub] = struct{}{}
	a.mutex.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.mutex.Lock()
			delete(a.subscribers, sub)
			a.mutex.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

func (a *Aggregator) publishLocked(event Event) {
	for sub := range a.subscribers {
		select {
		case sub.ch <- event:
		default:
		}
	}
}
