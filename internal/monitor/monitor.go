package monitor

import "time"

// Status is the outcome classification of a monitor or a single probe.
type Status string

const (
	StatusUnknown Status = "unknown"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Monitor is a configured target URL plus its polling window.
// Enabled and LastStatus are runtime fields filled in by the service layer.
type Monitor struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Days            DaySet    `json:"days"`
	StartTime       ClockTime `json:"start_time"`
	EndTime         ClockTime `json:"end_time"`
	IntervalSeconds int       `json:"interval_seconds"`
	Enabled         bool      `json:"enabled"`
	LastStatus      Status    `json:"last_status"`
}

// Interval returns the polling period as a duration.
func (m Monitor) Interval() time.Duration {
	return time.Duration(m.IntervalSeconds) * time.Second
}

// ProbeResult is the immutable outcome of one probe.
// LatencyMs is set only when an HTTP exchange completed; ErrorMessage only
// when Status is StatusError.
type ProbeResult struct {
	MonitorID    string    `json:"monitor_id"`
	Timestamp    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
	LatencyMs    *int64    `json:"latency_ms,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	URLSnapshot  string    `json:"url_snapshot"`
}

// Latency returns the recorded latency and whether one was recorded.
func (r ProbeResult) Latency() (time.Duration, bool) {
	if r.LatencyMs == nil {
		return 0, false
	}
	return time.Duration(*r.LatencyMs) * time.Millisecond, true
}
