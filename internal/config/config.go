// Package config loads the optional savewarden configuration file.
//
// Every scalar is a pointer so an unset key can be told apart from a zero
// value; command-line flags override whatever the file sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the optional savewarden configuration file.
type Config struct {
	Watch    WatchConfig    `toml:"watch"`
	Autosave AutosaveConfig `toml:"autosave"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// WatchConfig selects the subject and the save directory to observe.
type WatchConfig struct {
	Launcher     *string   `toml:"launcher"`
	Process      *string   `toml:"process"`
	SaveDir      *string   `toml:"save_dir"`
	Include      []string  `toml:"include"`
	Exclude      []string  `toml:"exclude"`
	PollInterval *Duration `toml:"poll_interval"`
}

// AutosaveConfig controls backup jobs.
type AutosaveConfig struct {
	Destination *string   `toml:"destination"`
	Delay       *Duration `toml:"delay"`
	Flatten     *bool     `toml:"flatten"`
	Tool        *string   `toml:"tool"`
	Verify      *bool     `toml:"verify"`
	BWLimit     *string   `toml:"bwlimit"`
	Workers     *int      `toml:"workers"`
}

type DispatchConfig struct {
	Capacity *int    `toml:"capacity"`
	Backoff  *string `toml:"backoff"`
}

// LogConfig configures the rotated log file sink.
type LogConfig struct {
	File       *string `toml:"file"`
	MaxSizeMB  *int    `toml:"max_size_mb"`
	MaxBackups *int    `toml:"max_backups"`
	Compress   *bool   `toml:"compress"`
}

type MetricsConfig struct {
	Textfile *string `toml:"textfile"`
	History  *string `toml:"history"`
}

// Duration is a time.Duration written as a string ("500ms", "2s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %q", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "savewarden", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// LoadFile reads the config file at path. Unknown keys are an error so
// typos do not silently fall back to defaults.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
