// Package metrics collects scheduler and probe metrics per monitor.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Probe counts split into successes and failures
//   - Probe latencies with percentile calculations (P50, P95, P99)
//   - Ticks skipped because a probe was still in flight
//   - Ticks that fell outside the monitor's window
//   - Stale results discarded after a stop or reconfigure
//   - Scheduler faults
//
// The collector runs in a dedicated goroutine. Producers send with
// non-blocking semantics so a full buffer drops events instead of stalling
// a monitor's task.
//
// Example usage:
//
//	collector := metrics.NewCollector(256, logger)
//	collector.Start(ctx)
//
//	metrics.Emit(collector.EventChannel(), metrics.Event{
//		Type:      metrics.EventProbeCompleted,
//		MonitorID: "3f2a...",
//		Latency:   150 * time.Millisecond,
//		Success:   true,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
