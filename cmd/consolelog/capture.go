package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/standardbeagle/consolelog/internal/capture"
	"github.com/standardbeagle/consolelog/internal/cdp"
	"github.com/standardbeagle/consolelog/internal/config"
	"github.com/standardbeagle/consolelog/internal/logfile"
)

// flushInterval bounds how long a captured event can sit in the write buffer.
const flushInterval = time.Second

func runCaptureCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	if listOnly, _ := cmd.Flags().GetBool("list-tabs"); listOnly {
		return listTabs(ctx, cmd.OutOrStdout(), cdp.NewClient(cfg.Host, cfg.Port, logger))
	}

	logger.Debug("starting capture", zap.Any("config", cfg))
	return runCapture(ctx, cfg, logger, cmd.OutOrStdout())
}

// runCapture records events until ctx is cancelled, or until the browser
// goes away when reconnection is disabled.
func runCapture(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdout io.Writer) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	client := cdp.NewClient(cfg.Host, cfg.Port, logger)
	defer client.CloseIdleConnections()

	var w *logfile.Writer
	if cfg.Stdout {
		w = logfile.NewStream(stdout)
	} else {
		var err error
		if w, err = logfile.Open(cfg.WriterOptions(), logger); err != nil {
			return err
		}
		logger.Info("writing events", zap.String("path", w.Path()))
	}

	filter := cfg.EventFilter()
	stats := capture.NewStats()

	m := capture.New(capture.NewCDPTransport(client), cfg.ManagerConfig(), logger)
	m.AddListener(capture.ListenerFuncs{
		Connected: func() {
			logger.Info("connected to browser",
				zap.String("endpoint", client.Addr()),
				zap.Int("tabs", len(m.AttachedTargets())))
		},
		Disconnected: func() {
			logger.Warn("disconnected from browser")
			if cfg.NoReconnect {
				stop()
			}
		},
		Targets: func(pages []cdp.Target) {
			logger.Debug("discovered tabs", zap.Int("count", len(pages)))
		},
		Event: func(ev capture.Event) {
			if !filter.Allow(ev) {
				return
			}
			stats.Record(ev)
			_ = w.Write(ev) // failures are logged by the writer
		},
	})

	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = w.Flush()
			}
		}
	}()

	connectErr := m.Connect(ctx)
	if connectErr == nil {
		<-ctx.Done()
	}
	stop()

	logger.Info("shutting down")
	m.Disconnect()
	<-flushDone
	closeErr := w.Close()

	snap := stats.Snapshot()
	logger.Info("capture summary",
		zap.Int("total", snap.Total),
		zap.Int("console", snap.Console),
		zap.Int("exceptions", snap.Exceptions),
		zap.Any("by_type", snap.ByType))

	if connectErr != nil && !errors.Is(connectErr, context.Canceled) {
		return fmt.Errorf("failed to start capture: %w", connectErr)
	}
	if closeErr != nil {
		return fmt.Errorf("error during shutdown: %w", closeErr)
	}
	return nil
}
