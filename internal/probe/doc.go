// Package probe performs single HTTP checks against monitor targets.
// It issues one GET per call with a timeout bounded below the monitor's
// polling interval, measures latency and classifies the outcome into a
// monitor.ProbeResult. Failures are never returned as errors.
package probe
