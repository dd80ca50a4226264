package metrics

import (
	"sort"
	"sync"
	"time"
)

// Latencies kept per monitor for percentile calculations.
const maxLatencySamples = 1000

type counters struct {
	probes         int64
	successes      int64
	failures       int64
	skippedBusy    int64
	outsideWindow  int64
	staleDiscarded int64
	faults         int64
	latencies      []time.Duration
}

type Metrics struct {
	mutex     sync.RWMutex
	monitors  map[string]*counters
	startTime time.Time
}

type Snapshot struct {
	TotalProbes int64                     `json:"total_probes"`
	Uptime      time.Duration             `json:"uptime"`
	Monitors    map[string]MonitorMetrics `json:"monitors"`
}

type MonitorMetrics struct {
	Probes         int64         `json:"probes"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	SkippedBusy    int64         `json:"skipped_busy"`
	OutsideWindow  int64         `json:"outside_window"`
	StaleDiscarded int64         `json:"stale_discarded"`
	Faults         int64         `json:"faults"`
	AvgLatency     time.Duration `json:"avg_latency"`
	P50Latency     time.Duration `json:"p50_latency"`
	P95Latency     time.Duration `json:"p95_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		monitors:  make(map[string]*counters),
		startTime: time.Now(),
	}
}

func (m *Metrics) countersLocked(id string) *counters {
	c, ok := m.monitors[id]
	if !ok {
		c = &counters{}
		m.monitors[id] = c
	}
	return c
}

// RecordProbe counts a completed probe. latency is only sampled when
// hasLatency is true.
func (m *Metrics) RecordProbe(id string, success bool, latency time.Duration, hasLatency bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	c := m.countersLocked(id)
	c.probes++
	if success {
		c.successes++
	} else {
		c.failures++
	}

	if hasLatency {
		c.latencies = append(c.latencies, latency)
		if len(c.latencies) > maxLatencySamples {
			c.latencies = c.latencies[1:]
		}
	}
}

func (m *Metrics) RecordSkippedBusy(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.countersLocked(id).skippedBusy++
}

func (m *Metrics) RecordOutsideWindow(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.countersLocked(id).outsideWindow++
}

func (m *Metrics) RecordStaleDiscarded(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.countersLocked(id).staleDiscarded++
}

func (m *Metrics) RecordFault(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.countersLocked(id).faults++
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Monitors: make(map[string]MonitorMetrics, len(m.monitors)),
	}

	for id, c := range m.monitors {
		snap.TotalProbes += c.probes

		mm := MonitorMetrics{
			Probes:         c.probes,
			Successes:      c.successes,
			Failures:       c.failures,
			SkippedBusy:    c.skippedBusy,
			OutsideWindow:  c.outsideWindow,
			StaleDiscarded: c.staleDiscarded,
			Faults:         c.faults,
		}

		if len(c.latencies) > 0 {
			sorted := make([]time.Duration, len(c.latencies))
			copy(sorted, c.latencies)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			mm.AvgLatency = average(sorted)
			mm.P50Latency = percentile(sorted, 0.50)
			mm.P95Latency = percentile(sorted, 0.95)
			mm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Monitors[id] = mm
	}

	return snap
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
