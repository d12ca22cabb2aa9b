package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/consolelog/internal/capture"
	"github.com/standardbeagle/consolelog/internal/cdp"
)

const listTimeout = 10 * time.Second

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List the browser tabs available for capture",
	Long: `List the page targets of the browser, numbered the way --tabs expects.

Example:
  consolelog tabs
  consolelog --tabs 1,3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(),
			syscall.SIGINT,
			syscall.SIGTERM,
		)
		defer cancel()
		return listTabs(ctx, cmd.OutOrStdout(), cdp.NewClient(cfg.Host, cfg.Port, logger))
	},
}

func init() {
	rootCmd.AddCommand(tabsCmd)
}

func listTabs(ctx context.Context, out io.Writer, client *cdp.Client) error {
	defer client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	fmt.Fprintf(out, "Connecting to CDP at %s...\n", client.Addr())
	targets, err := client.ListTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tabs: %w", err)
	}

	pages := capture.PageTargets(targets)
	if len(pages) == 0 {
		fmt.Fprintln(out, "No browser tabs found.")
		return nil
	}

	fmt.Fprintf(out, "\nFound %d browser tab(s):\n\n", len(pages))
	for i, tab := range pages {
		title := tab.Title
		if title == "" {
			title = "(no title)"
		}
		fmt.Fprintf(out, "[%d] %s\n", i+1, title)
		fmt.Fprintf(out, "    URL: %s\n", tab.URL)
		fmt.Fprintf(out, "    ID:  %s\n\n", tab.ID)
	}
	fmt.Fprintln(out, "Use --tabs <numbers> to monitor specific tabs (e.g., --tabs 1,2,4)")
	return nil
}
