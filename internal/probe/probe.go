package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

const (
	DefaultMaxTimeout = 10 * time.Second
	DefaultUserAgent  = "window-monitor/1.0"

	// Bodies are drained up to this size so connections can be reused.
	maxDrainBytes = 64 << 10
)

// Options configures an Executor. Zero values select defaults.
type Options struct {
	MaxTimeout time.Duration
	UserAgent  string
	Clock      clockwork.Clock
	Transport  http.RoundTripper
}

// Executor runs probes. It is safe for concurrent use.
type Executor struct {
	client     *http.Client
	clock      clockwork.Clock
	maxTimeout time.Duration
	userAgent  string
}

func New(opts Options) *Executor {
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = DefaultMaxTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Executor{
		// The per-probe deadline is carried by the request context.
		client:     &http.Client{Transport: opts.Transport},
		clock:      opts.Clock,
		maxTimeout: opts.MaxTimeout,
		userAgent:  opts.UserAgent,
	}
}

// TimeoutFor returns the probe timeout for a polling interval: nine tenths
// of the interval, capped at max. The result is always shorter than a
// positive interval.
func TimeoutFor(interval, max time.Duration) time.Duration {
	timeout := interval - interval/10
	if max > 0 && timeout > max {
		timeout = max
	}
	return timeout
}

// Execute performs exactly one GET against m.URL. Any 2xx response is a
// success; every other status code and every transport failure is an error.
// Latency is recorded whenever a response was received.
func (e *Executor) Execute(ctx context.Context, m monitor.Monitor) monitor.ProbeResult {
	result := monitor.ProbeResult{
		MonitorID:   m.ID,
		Timestamp:   e.clock.Now(),
		URLSnapshot: m.URL,
	}

	timeout := TimeoutFor(m.Interval(), e.maxTimeout)
	if timeout <= 0 {
		timeout = e.maxTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.URL, nil)
	if err != nil {
		return failed(result, fmt.Sprintf("invalid request: %v", err))
	}
	req.Header.Set("User-Agent", e.userAgent)

	start := time.Now()
	res, err := e.client.Do(req)
	if err != nil {
		return failed(result, describe(ctx, err, timeout))
	}
	latency := time.Since(start).Milliseconds()
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxDrainBytes))

	result.LatencyMs = &latency
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return failed(result, fmt.Sprintf("unexpected status: %s", res.Status))
	}

	result.Status = monitor.StatusSuccess
	return result
}

func failed(result monitor.ProbeResult, message string) monitor.ProbeResult {
	result.Status = monitor.StatusError
	result.ErrorMessage = message
	return result
}

func describe(parent context.Context, err error, timeout time.Duration) string {
	if errors.Is(parent.Err(), context.Canceled) {
		return "probe cancelled"
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Sprintf("timeout after %s", timeout)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("dns lookup failed for %s: %s", dnsErr.Name, dnsErr.Err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Sprintf("connection failed: %v", opErr.Err)
	}

	return fmt.Sprintf("request failed: %v", err)
}
