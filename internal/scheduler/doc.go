// Package scheduler runs one independent polling task per monitor.
//
// Each running monitor owns a goroutine with its own ticker. A tick is
// skipped while the previous probe for that monitor is still in flight, and
// skipped silently when the monitor is outside its window. Every start is
// tagged with the monitor's current generation; Stop and Reconfigure bump
// the generation so results of superseded probes are discarded on arrival.
//
// A Fault inside one monitor's task stops that monitor only.
package scheduler
