// Package snapshot reads and writes the persisted monitor state: every
// monitor's configuration plus its most recent probe results.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

const currentVersion = 1

// State is the in-memory form of a snapshot file.
type State struct {
	Monitors []MonitorState
}

type MonitorState struct {
	Monitor monitor.Monitor
	// Recent holds the newest results first.
	Recent []monitor.ProbeResult
}

type fileState struct {
	Version  int             `yaml:"version"`
	SavedAt  time.Time       `yaml:"saved_at"`
	Monitors []monitorRecord `yaml:"monitors"`
}

type monitorRecord struct {
	ID              string         `yaml:"id"`
	Name            string         `yaml:"name"`
	URL             string         `yaml:"url"`
	Days            []string       `yaml:"days"`
	StartTime       string         `yaml:"start_time"`
	EndTime         string         `yaml:"end_time"`
	IntervalSeconds int            `yaml:"interval_seconds"`
	Enabled         bool           `yaml:"enabled"`
	LastStatus      string         `yaml:"last_status"`
	Recent          []resultRecord `yaml:"recent"`
}

type resultRecord struct {
	MonitorID    string    `yaml:"monitor_id"`
	Timestamp    time.Time `yaml:"timestamp"`
	Status       string    `yaml:"status"`
	LatencyMs    *int64    `yaml:"latency_ms,omitempty"`
	ErrorMessage string    `yaml:"error_message,omitempty"`
	URLSnapshot  string    `yaml:"url_snapshot"`
}

func Encode(state State) ([]byte, error) {
	file := fileState{
		Version:  currentVersion,
		SavedAt:  time.Now().UTC(),
		Monitors: make([]monitorRecord, 0, len(state.Monitors)),
	}

	for _, ms := range state.Monitors {
		m := ms.Monitor
		rec := monitorRecord{
			ID:              m.ID,
			Name:            m.Name,
			URL:             m.URL,
			Days:            m.Days.Names(),
			StartTime:       string(m.StartTime),
			EndTime:         string(m.EndTime),
			IntervalSeconds: m.IntervalSeconds,
			Enabled:         m.Enabled,
			LastStatus:      string(m.LastStatus),
			Recent:          make([]resultRecord, 0, len(ms.Recent)),
		}
		for _, r := range ms.Recent {
			rec.Recent = append(rec.Recent, resultRecord{
				MonitorID:    r.MonitorID,
				Timestamp:    r.Timestamp,
				Status:       string(r.Status),
				LatencyMs:    r.LatencyMs,
				ErrorMessage: r.ErrorMessage,
				URLSnapshot:  r.URLSnapshot,
			})
		}
		file.Monitors = append(file.Monitors, rec)
	}

	return yaml.Marshal(&file)
}

func Decode(data []byte) (State, error) {
	var file fileState
	if err := yaml.Unmarshal(data, &file); err != nil {
		return State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if file.Version > currentVersion {
		return State{}, fmt.Errorf("unsupported snapshot version %d", file.Version)
	}

	state := State{Monitors: make([]MonitorState, 0, len(file.Monitors))}
	for _, rec := range file.Monitors {
		days, err := monitor.ParseDaySet(rec.Days)
		if err != nil {
			return State{}, fmt.Errorf("monitor %q: %w", rec.ID, err)
		}

		ms := MonitorState{
			Monitor: monitor.Monitor{
				ID:              rec.ID,
				Name:            rec.Name,
				URL:             rec.URL,
				Days:            days,
				StartTime:       monitor.ClockTime(rec.StartTime),
				EndTime:         monitor.ClockTime(rec.EndTime),
				IntervalSeconds: rec.IntervalSeconds,
				Enabled:         rec.Enabled,
				LastStatus:      parseStatus(rec.LastStatus),
			},
			Recent: make([]monitor.ProbeResult, 0, len(rec.Recent)),
		}
		for _, r := range rec.Recent {
			ms.Recent = append(ms.Recent, monitor.ProbeResult{
				MonitorID:    r.MonitorID,
				Timestamp:    r.Timestamp,
				Status:       parseStatus(r.Status),
				LatencyMs:    r.LatencyMs,
				ErrorMessage: r.ErrorMessage,
				URLSnapshot:  r.URLSnapshot,
			})
		}
		state.Monitors = append(state.Monitors, ms)
	}
	return state, nil
}

func parseStatus(s string) monitor.Status {
	switch monitor.Status(s) {
	case monitor.StatusSuccess, monitor.StatusError:
		return monitor.Status(s)
	default:
		return monitor.StatusUnknown
	}
}

// Save writes state to path through a temporary file and a rename, so a
// crash never leaves a truncated snapshot behind.
func Save(path string, state State) error {
	data, err := Encode(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot at path. A missing file yields an empty state.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(data)
}
