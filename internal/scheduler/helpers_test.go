package scheduler_test

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

// fakeExecutor succeeds instantly unless the target url is blocked, in which
// case Execute waits for release and ignores cancellation, like a probe
// whose response arrives late.
type fakeExecutor struct {
	clock   clockwork.Clock
	mutex   sync.Mutex
	calls   map[string]int
	blocked map[string]chan struct{}
}

func newFakeExecutor(clock clockwork.Clock) *fakeExecutor {
	return &fakeExecutor{
		clock:   clock,
		calls:   make(map[string]int),
		blocked: make(map[string]chan struct{}),
	}
}

func (f *fakeExecutor) Execute(_ context.Context, m monitor.Monitor) monitor.ProbeResult {
	f.mutex.Lock()
	f.calls[m.ID]++
	gate := f.blocked[m.URL]
	f.mutex.Unlock()

	if gate != nil {
		<-gate
	}

	latency := int64(5)
	return monitor.ProbeResult{
		MonitorID:   m.ID,
		Timestamp:   f.clock.Now(),
		Status:      monitor.StatusSuccess,
		LatencyMs:   &latency,
		URLSnapshot: m.URL,
	}
}

func (f *fakeExecutor) Calls(id string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[id]
}

func (f *fakeExecutor) block(url string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.blocked[url] = make(chan struct{})
}

func (f *fakeExecutor) release(url string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if gate, ok := f.blocked[url]; ok {
		close(gate)
		delete(f.blocked, url)
	}
}

func (f *fakeExecutor) releaseAll() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for url, gate := range f.blocked {
		close(gate)
		delete(f.blocked, url)
	}
}

// memoryLookup lets tests remove a monitor behind the scheduler's back.
type memoryLookup struct {
	mutex    sync.Mutex
	monitors map[string]monitor.Monitor
}

func newMemoryLookup(monitors ...monitor.Monitor) *memoryLookup {
	l := &memoryLookup{monitors: make(map[string]monitor.Monitor)}
	for _, m := range monitors {
		l.monitors[m.ID] = m
	}
	return l
}

func (l *memoryLookup) Get(id string) (monitor.Monitor, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	m, ok := l.monitors[id]
	if !ok {
		return monitor.Monitor{}, &monitor.NotFoundError{ID: id}
	}
	return m, nil
}

func (l *memoryLookup) delete(id string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	delete(l.monitors, id)
}
