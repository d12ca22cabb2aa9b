// Package config holds the consolelog settings and loads them from KDL files.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/standardbeagle/consolelog/internal/capture"
	"github.com/standardbeagle/consolelog/internal/logfile"
)

// Defaults.
const (
	DefaultHost              = "127.0.0.1"
	DefaultPort              = 9222
	DefaultLogFile           = "browser-console.ndjson"
	DefaultReconcileInterval = 2 * time.Second
)

// Config holds the complete capture configuration.
type Config struct {
	// Host and Port locate the browser's remote debugging endpoint.
	Host string `json:"host"`
	Port int    `json:"port"`

	// LogFile is the NDJSON output path. Ignored when Stdout is set.
	LogFile string `json:"log_file"`
	// Stdout writes events to standard output instead of LogFile.
	Stdout bool `json:"stdout"`
	// MaxSizeBytes rotates LogFile once it reaches this size (0 = never).
	MaxSizeBytes int64 `json:"max_size_bytes"`
	// RotateKeep is the number of rotated files kept.
	RotateKeep int `json:"rotate_keep"`

	IncludeConsole    bool `json:"include_console"`
	IncludeExceptions bool `json:"include_exceptions"`
	// Levels limits console events to these methods (empty = all).
	Levels []string `json:"levels,omitempty"`

	// TargetURLSubstring limits capture to tabs whose URL contains it.
	TargetURLSubstring string `json:"target_url_substring,omitempty"`
	// Tabs limits capture to these 1-based tab positions.
	Tabs []int `json:"tabs,omitempty"`

	// ReconcileInterval is how often the tab list is re-read (0 = never).
	ReconcileInterval time.Duration `json:"reconcile_interval"`
	// NoReconnect exits instead of retrying when the browser goes away.
	NoReconnect bool `json:"no_reconnect"`

	Verbose bool `json:"verbose"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:              DefaultHost,
		Port:              DefaultPort,
		LogFile:           DefaultLogFile,
		RotateKeep:        logfile.DefaultKeep,
		IncludeConsole:    true,
		IncludeExceptions: true,
		ReconcileInterval: DefaultReconcileInterval,
	}
}

// Validate checks the configuration for errors, filling in defaults for
// unset optional values.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, errors.New("host is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if !c.Stdout && strings.TrimSpace(c.LogFile) == "" {
		errs = append(errs, errors.New("log file is required unless writing to stdout"))
	}
	if c.MaxSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("max size %d must not be negative", c.MaxSizeBytes))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, fmt.Errorf("reconcile interval %s must not be negative", c.ReconcileInterval))
	}
	if c.RotateKeep <= 0 {
		c.RotateKeep = logfile.DefaultKeep
	}

	return errors.Join(errs...)
}

// Filter returns the tab selection rules.
func (c *Config) Filter() capture.Filter {
	return capture.Filter{
		URLSubstring: c.TargetURLSubstring,
		TabIndices:   c.Tabs,
	}
}

// EventFilter returns the rules deciding which events are written.
func (c *Config) EventFilter() capture.EventFilter {
	return capture.EventFilter{
		IncludeConsole:    c.IncludeConsole,
		IncludeExceptions: c.IncludeExceptions,
		Levels:            c.Levels,
	}
}

// ManagerConfig returns the session manager settings.
func (c *Config) ManagerConfig() capture.Config {
	mc := capture.DefaultConfig()
	mc.Filter = c.Filter()
	mc.ReconcileInterval = c.ReconcileInterval
	mc.NoReconnect = c.NoReconnect
	return mc
}

// WriterOptions returns the log file settings.
func (c *Config) WriterOptions() logfile.Options {
	return logfile.Options{
		Path:         c.LogFile,
		MaxSizeBytes: c.MaxSizeBytes,
		Keep:         c.RotateKeep,
	}
}

// ParseTabIndices parses a comma-separated list of 1-based tab positions
// such as "1,2,4". Entries that are not positive integers are skipped and
// returned in skipped.
func ParseTabIndices(s string) (indices []int, skipped []string) {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n <= 0 {
			skipped = append(skipped, part)
			continue
		}
		indices = append(indices, n)
	}
	return indices, skipped
}
