package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// RunState describes a running watcher so "savewarden status" can find it.
type RunState struct {
	PID         int       `toml:"pid"`
	Session     string    `toml:"session"`
	StartedAt   time.Time `toml:"started_at"`
	SaveDir     string    `toml:"save_dir"`
	Destination string    `toml:"destination"`
}

// StateDir returns the per-user state directory ($XDG_STATE_HOME/savewarden).
func StateDir() string {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "savewarden")
}

// RunStatePath returns the path of the run state file.
func RunStatePath() string {
	return filepath.Join(StateDir(), "run.toml")
}

// WriteRunState records s, creating the state directory if needed.
func WriteRunState(s RunState) error {
	path := RunStatePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ReadRunState returns os.ErrNotExist when no watcher has recorded state.
func ReadRunState() (RunState, error) {
	var s RunState
	if _, err := toml.DecodeFile(RunStatePath(), &s); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return RunState{}, os.ErrNotExist
		}
		return RunState{}, err
	}
	return s, nil
}

// RemoveRunState removes the run state file (best-effort).
func RemoveRunState() {
	os.Remove(RunStatePath()) //nolint:errcheck // best-effort cleanup on shutdown
}
