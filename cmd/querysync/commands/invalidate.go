package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/resyncio/querysync/cmd/querysync/cmdutil"
	"github.com/resyncio/querysync/internal/cli/prompt"
	"github.com/resyncio/querysync/pkg/querycache"
	"github.com/resyncio/querysync/pkg/querykey"
)

var (
	invalidatePrefix []string
	invalidateForce  bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Mark matching cache entries stale and refetch their active observers",
	Long: `Invalidate every cache entry whose key has the given prefix,
triggering a background refetch for any entry with at least one active
observer.

Omitting --prefix matches every key in the cache; that confirmation
requires typing "invalidate-all" rather than a plain y/n.

Examples:
  querysync invalidate --prefix fetch-demo
  querysync invalidate --prefix fetch-demo --force
  querysync invalidate`,
	RunE: runInvalidate,
}

func init() {
	invalidateCmd.Flags().StringSliceVar(&invalidatePrefix, "prefix", nil, "key prefix parts to match (all keys if omitted)")
	invalidateCmd.Flags().BoolVarP(&invalidateForce, "force", "f", false, "skip the confirmation prompt")
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := cmdutil.Bootstrap(ctx, cmdutil.Flags.ConfigPath, Version)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close(ctx)

	parts := make([]any, len(invalidatePrefix))
	for i, p := range invalidatePrefix {
		parts[i] = p
	}
	prefix := querykey.New(parts...)
	filter := querycache.Filter{Key: prefix, HasKey: true}

	if len(invalidatePrefix) == 0 {
		filter = querycache.Filter{}
		if !invalidateForce {
			ok, err := prompt.ConfirmDanger("This matches every key in the cache", "invalidate-all")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("aborted")
				return nil
			}
		}
	} else {
		ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Invalidate all entries under %q?", prefix.String()), invalidateForce)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}

	affected := app.Client.InvalidateQueries(ctx, filter)
	fmt.Printf("invalidated %d entries\n", len(affected))
	for _, k := range affected {
		fmt.Printf("  %s\n", k.String())
	}
	return nil
}
