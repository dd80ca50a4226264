// Package monitor defines the monitor configuration model shared by the
// registry, scheduler and query surfaces: monitors, their polling windows,
// probe results and the validation errors raised at the registry boundary.
package monitor
