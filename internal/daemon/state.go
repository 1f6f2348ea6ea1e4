package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the controller lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateDaemonizing
	StateRunning
	StateReloadPending
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateDaemonizing:
		return "daemonizing"
	case StateRunning:
		return "running"
	case StateReloadPending:
		return "reload_pending"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RestartState is the bookkeeping persisted across daemon processes.
type RestartState struct {
	Starts       int       `json:"starts"`
	RestartCount int       `json:"restart_count"`
	LastRestart  time.Time `json:"last_restart,omitzero"`
	LastStart    time.Time `json:"last_start,omitzero"`
	LastStop     time.Time `json:"last_stop,omitzero"`
	PID          int       `json:"pid,omitempty"`
}

// started returns the state after a process start at now. Every start but
// the first counts as a restart.
func (s RestartState) started(now time.Time, pid int) RestartState {
	s.Starts++
	if s.Starts > 1 {
		s.RestartCount++
		s.LastRestart = now
	}
	s.LastStart = now
	s.LastStop = time.Time{}
	s.PID = pid
	return s
}

// LoadRestartState reads the state file. A missing file yields a zero state.
func LoadRestartState(path string) (RestartState, error) {
	var st RestartState

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return RestartState{}, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	return st, nil
}

// SaveRestartState writes the state file through a temporary file and rename.
func SaveRestartState(path string, st RestartState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}
