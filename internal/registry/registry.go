// Package registry owns the authoritative set of monitor configurations.
package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

// Registry stores monitors in insertion order. Runtime fields (Enabled,
// LastStatus) are not tracked here. It is safe for concurrent use.
type Registry struct {
	mutex    sync.RWMutex
	order    []string
	monitors map[string]monitor.Monitor
	newID    func() string
}

func New() *Registry {
	return &Registry{
		monitors: make(map[string]monitor.Monitor),
		newID:    uuid.NewString,
	}
}

// Add validates d and stores it under a fresh id.
func (r *Registry) Add(d monitor.Draft) (monitor.Monitor, error) {
	m := d.Build(r.newID())
	if err := m.Validate(); err != nil {
		return monitor.Monitor{}, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.insertLocked(m)
	return m, nil
}

// Restore stores m under its existing id, as loaded from a snapshot.
func (r *Registry) Restore(m monitor.Monitor) error {
	if m.ID == "" {
		return monitor.NewValidationError(fmt.Errorf("restored monitor has no id"))
	}
	m.Enabled = false
	m.LastStatus = monitor.StatusUnknown
	if err := m.Validate(); err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.monitors[m.ID]; exists {
		return monitor.NewValidationError(fmt.Errorf("duplicate monitor id %q", m.ID))
	}
	r.insertLocked(m)
	return nil
}

func (r *Registry) insertLocked(m monitor.Monitor) {
	r.monitors[m.ID] = m
	r.order = append(r.order, m.ID)
}

// Update applies p to the monitor with id and re-validates it. The boolean
// reports whether a schedule-relevant field changed.
func (r *Registry) Update(id string, p monitor.Patch) (monitor.Monitor, bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	current, ok := r.monitors[id]
	if !ok {
		return monitor.Monitor{}, false, &monitor.NotFoundError{ID: id}
	}

	updated, rescheduled := p.Apply(current)
	if err := updated.Validate(); err != nil {
		return monitor.Monitor{}, false, err
	}

	r.monitors[id] = updated
	return updated, rescheduled, nil
}

// CheckRemovable reports whether Remove(id) would currently succeed.
func (r *Registry) CheckRemovable(id string) error {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.checkRemovableLocked(id)
}

func (r *Registry) checkRemovableLocked(id string) error {
	if _, ok := r.monitors[id]; !ok {
		return &monitor.NotFoundError{ID: id}
	}
	if len(r.monitors) <= 1 {
		return monitor.NewValidationError(monitor.ErrLastMonitor)
	}
	return nil
}

// Remove deletes the monitor with id. The last remaining monitor cannot be
// removed.
func (r *Registry) Remove(id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.checkRemovableLocked(id); err != nil {
		return err
	}

	r.deleteLocked(id)
	return nil
}

// Withdraw undoes an Add that could not be completed. Unlike Remove it may
// leave the registry empty.
func (r *Registry) Withdraw(id string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.deleteLocked(id)
}

func (r *Registry) deleteLocked(id string) {
	delete(r.monitors, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Get(id string) (monitor.Monitor, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.monitors[id]
	if !ok {
		return monitor.Monitor{}, &monitor.NotFoundError{ID: id}
	}
	return m, nil
}

// List returns a snapshot of all monitors in insertion order.
func (r *Registry) List() []monitor.Monitor {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]monitor.Monitor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.monitors[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.monitors)
}
