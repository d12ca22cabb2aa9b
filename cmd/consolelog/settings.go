package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/standardbeagle/consolelog/internal/config"
)

func addConnectionFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a KDL config file (default: ./"+config.ProjectConfigFile+" if present)")
	fs.String("host", config.DefaultHost, "CDP host address")
	fs.Int("port", config.DefaultPort, "CDP port number")
	fs.BoolP("verbose", "v", false, "Enable debug logging")
}

func addCaptureFlags(fs *pflag.FlagSet) {
	fs.String("log-file", config.DefaultLogFile, "Path to the NDJSON log file")
	fs.Bool("stdout", false, "Write events to stdout instead of the log file")
	fs.Bool("include-console", true, "Include console events")
	fs.Bool("include-exceptions", true, "Include uncaught exceptions")
	fs.StringSlice("level", nil, "Console levels to capture (repeatable, e.g. --level warn --level error)")
	fs.String("target-url-substring", "", "Only capture tabs whose URL contains this text")
	fs.String("tabs", "", "Only capture these tabs by index (comma-separated, e.g. 1,2,4)")
	fs.Bool("list-tabs", false, "List available browser tabs and exit")
	fs.Int64("max-size-bytes", 0, "Rotate the log file at this size (0 disables rotation)")
	fs.Int("rotate-keep", 5, "Number of rotated log files to keep")
	fs.Duration("reconcile-interval", config.DefaultReconcileInterval, "How often to look for new or closed tabs (0 disables)")
	fs.Bool("no-reconnect", false, "Exit when the browser goes away instead of reconnecting")
}

// loadConfig reads the config file named by --config, or the project file
// when present, and applies explicitly set flags on top. Flag values that
// were ignored are reported as warnings.
func loadConfig(cmd *cobra.Command) (*config.Config, []string, error) {
	var (
		loaded *config.Config
		err    error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err = config.LoadFile(path)
	} else {
		loaded, err = config.LoadProjectConfig(".")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if loaded == nil {
		loaded = config.DefaultConfig()
	}

	warnings := applyFlags(cmd.Flags(), loaded)
	if err := loaded.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return loaded, warnings, nil
}

// applyFlags copies flags the user set explicitly into cfg and returns a
// warning for each value it had to ignore.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) (warnings []string) {
	if fs.Changed("host") {
		cfg.Host, _ = fs.GetString("host")
	}
	if fs.Changed("port") {
		cfg.Port, _ = fs.GetInt("port")
	}
	if fs.Changed("verbose") {
		cfg.Verbose, _ = fs.GetBool("verbose")
	}
	if fs.Changed("log-file") {
		cfg.LogFile, _ = fs.GetString("log-file")
	}
	if fs.Changed("stdout") {
		cfg.Stdout, _ = fs.GetBool("stdout")
	}
	if fs.Changed("include-console") {
		cfg.IncludeConsole, _ = fs.GetBool("include-console")
	}
	if fs.Changed("include-exceptions") {
		cfg.IncludeExceptions, _ = fs.GetBool("include-exceptions")
	}
	if fs.Changed("level") {
		cfg.Levels, _ = fs.GetStringSlice("level")
	}
	if fs.Changed("target-url-substring") {
		cfg.TargetURLSubstring, _ = fs.GetString("target-url-substring")
	}
	if fs.Changed("tabs") {
		tabs, _ := fs.GetString("tabs")
		var skipped []string
		cfg.Tabs, skipped = config.ParseTabIndices(tabs)
		switch {
		case len(skipped) > 0 && len(cfg.Tabs) == 0:
			warnings = append(warnings, fmt.Sprintf("--tabs %q has no valid tab index; capturing every tab", tabs))
		case len(skipped) > 0:
			warnings = append(warnings, fmt.Sprintf("--tabs: ignoring invalid entries %s", strings.Join(skipped, ",")))
		}
	}
	if fs.Changed("max-size-bytes") {
		cfg.MaxSizeBytes, _ = fs.GetInt64("max-size-bytes")
	}
	if fs.Changed("rotate-keep") {
		cfg.RotateKeep, _ = fs.GetInt("rotate-keep")
	}
	if fs.Changed("reconcile-interval") {
		cfg.ReconcileInterval, _ = fs.GetDuration("reconcile-interval")
	}
	if fs.Changed("no-reconnect") {
		cfg.NoReconnect, _ = fs.GetBool("no-reconnect")
	}
	return warnings
}
