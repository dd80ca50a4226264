package scheduler

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Start and Reconfigure after Shutdown.
var ErrClosed = errors.New("scheduler is shut down")

// Fault is an internal inconsistency in a monitor's task.
type Fault struct {
	MonitorID string
	Err       error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("scheduler fault for monitor %q: %v", f.MonitorID, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}
