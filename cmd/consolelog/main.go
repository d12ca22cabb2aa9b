package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/standardbeagle/consolelog/internal/config"
)

const (
	appName    = "consolelog"
	appVersion = "1.0.0"
)

// skipConfig marks commands that run without loading the capture config.
const skipConfig = "skip-config"

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Capture browser console events and exceptions to NDJSON",
	Long: `consolelog attaches to a Chromium-based browser over the DevTools protocol
and records console calls and uncaught exceptions from its tabs as
newline-delimited JSON, one event per line.

Start the browser with remote debugging enabled, for example:
  chrome --remote-debugging-port=9222

Settings are read from .consolelog.kdl in the working directory (or the
file given with --config); flags override the file.`,
	Version:      appVersion,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		var warnings []string
		if cmd.Annotations[skipConfig] != "true" {
			loaded, w, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cfg = loaded
			verbose = cfg.Verbose
			warnings = w
		}

		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		for _, w := range warnings {
			logger.Warn(w)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	RunE: runCaptureCmd,
}

func init() {
	addConnectionFlags(rootCmd.PersistentFlags())
	addCaptureFlags(rootCmd.Flags())

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
