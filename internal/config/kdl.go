package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
)

// ProjectConfigFile is read from the working directory when no --config
// path is given.
const ProjectConfigFile = ".consolelog.kdl"

// KDLConfig represents the KDL configuration file.
// Uses kdl struct tags for unmarshaling.
type KDLConfig struct {
	Browser KDLBrowser `kdl:"browser"`
	Capture KDLCapture `kdl:"capture"`
	Output  KDLOutput  `kdl:"output"`
	Verbose *bool      `kdl:"verbose"`
}

// KDLBrowser locates the debugging endpoint.
type KDLBrowser struct {
	Host string `kdl:"host"`
	Port int    `kdl:"port"`
}

// KDLCapture selects tabs and events.
type KDLCapture struct {
	IncludeConsole     *bool    `kdl:"include-console"`
	IncludeExceptions  *bool    `kdl:"include-exceptions"`
	Levels             []string `kdl:"levels"`
	TargetURLSubstring string   `kdl:"target-url-substring"`
	Tabs               []int    `kdl:"tabs"`
	ReconcileInterval  string   `kdl:"reconcile-interval"`
	NoReconnect        *bool    `kdl:"no-reconnect"`
}

// KDLOutput configures where events are written.
type KDLOutput struct {
	LogFile      string `kdl:"log-file"`
	Stdout       *bool  `kdl:"stdout"`
	MaxSizeBytes int64  `kdl:"max-size-bytes"`
	RotateKeep   int    `kdl:"rotate-keep"`
}

// LoadFile loads configuration from a specific file path, starting from
// DefaultConfig.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := ParseKDLConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadProjectConfig loads .consolelog.kdl from dir. It returns nil, nil if
// the file does not exist.
func LoadProjectConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, ProjectConfigFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return LoadFile(path)
}

// ParseKDLConfig parses KDL configuration data over the defaults.
func ParseKDLConfig(data string) (*Config, error) {
	var kdlCfg KDLConfig
	if err := kdl.Unmarshal([]byte(data), &kdlCfg); err != nil {
		return nil, err
	}
	return kdlConfigToConfig(&kdlCfg)
}

// kdlConfigToConfig converts KDL config to our Config type.
func kdlConfigToConfig(k *KDLConfig) (*Config, error) {
	cfg := DefaultConfig()

	if k.Browser.Host != "" {
		cfg.Host = k.Browser.Host
	}
	if k.Browser.Port > 0 {
		cfg.Port = k.Browser.Port
	}

	setBool(&cfg.IncludeConsole, k.Capture.IncludeConsole)
	setBool(&cfg.IncludeExceptions, k.Capture.IncludeExceptions)
	setBool(&cfg.NoReconnect, k.Capture.NoReconnect)
	if len(k.Capture.Levels) > 0 {
		cfg.Levels = k.Capture.Levels
	}
	if k.Capture.TargetURLSubstring != "" {
		cfg.TargetURLSubstring = k.Capture.TargetURLSubstring
	}
	for _, n := range k.Capture.Tabs {
		if n > 0 {
			cfg.Tabs = append(cfg.Tabs, n)
		}
	}
	if k.Capture.ReconcileInterval != "" {
		d, err := time.ParseDuration(k.Capture.ReconcileInterval)
		if err != nil {
			return nil, fmt.Errorf("reconcile-interval: %w", err)
		}
		cfg.ReconcileInterval = d
	}

	if k.Output.LogFile != "" {
		cfg.LogFile = k.Output.LogFile
	}
	setBool(&cfg.Stdout, k.Output.Stdout)
	if k.Output.MaxSizeBytes > 0 {
		cfg.MaxSizeBytes = k.Output.MaxSizeBytes
	}
	if k.Output.RotateKeep > 0 {
		cfg.RotateKeep = k.Output.RotateKeep
	}

	setBool(&cfg.Verbose, k.Verbose)
	return cfg, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// WriteDefaultConfig writes a default config file with documentation.
func WriteDefaultConfig(path string) error {
	defaultKDL := `// consolelog configuration
// Command-line flags override the values below.

browser {
    // Remote debugging endpoint (chrome --remote-debugging-port=9222)
    host "127.0.0.1"
    port 9222
}

capture {
    include-console true
    include-exceptions true
    // Console methods to keep; omit to keep all
    // levels "log" "warn" "error"
    // Only tabs whose URL contains this text
    // target-url-substring "localhost:3000"
    // Only these tabs, numbered as in "consolelog tabs"
    // tabs 1 2
    // How often to look for new or closed tabs
    reconcile-interval "2s"
    // Exit instead of reconnecting when the browser goes away
    no-reconnect false
}

output {
    log-file "browser-console.ndjson"
    // Write NDJSON to standard output instead of log-file
    stdout false
    // Rotate once the file reaches this many bytes (0 = never)
    max-size-bytes 0
    // Rotated files to keep
    rotate-keep 5
}

verbose false
`
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(strings.TrimSpace(defaultKDL)+"\n"), 0644)
}
