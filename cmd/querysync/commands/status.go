package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/resyncio/querysync/cmd/querysync/cmdutil"
	"github.com/resyncio/querysync/internal/cli/health"
	"github.com/resyncio/querysync/internal/cli/output"
	"github.com/resyncio/querysync/internal/cli/timeutil"
)

var processStart = time.Now()

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cache's current state",
	Long: `Display a snapshot of the querysync cache: connectivity, window
focus, how many keys currently have an entry, and how many fetches are
in flight.

Examples:
  # Check the cache's current state
  querysync status

  # Output as JSON
  querysync status -o json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := cmdutil.Bootstrap(ctx, cmdutil.Flags.ConfigPath, Version)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close(ctx)

	uptime := time.Since(processStart)
	snap := health.Snapshot{
		Online:        app.Online.Value(),
		Focused:       app.Focus.Value(),
		CacheEntries:  app.Client.EntryCount(),
		FetchingCount: app.Client.GlobalFetchingCount(),
		Uptime:        uptime.String(),
		UptimeSec:     int64(uptime.Seconds()),
		StartedAt:     processStart.Format(time.RFC3339),
	}

	format, err := output.ParseFormat(cmdutil.Flags.Output)
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, snap)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, snap)
	default:
		return output.SimpleTable(os.Stdout, [][2]string{
			{"Online", fmt.Sprintf("%v", snap.Online)},
			{"Focused", fmt.Sprintf("%v", snap.Focused)},
			{"Cache entries", fmt.Sprintf("%d", snap.CacheEntries)},
			{"Fetching", fmt.Sprintf("%d", snap.FetchingCount)},
			{"Uptime", timeutil.FormatUptime(snap.Uptime)},
			{"Started", timeutil.FormatTime(snap.StartedAt)},
		})
	}
}
