// Package commands implements the querysync demo CLI's subcommands.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/resyncio/querysync/cmd/querysync/cmdutil"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "querysync",
	Short: "querysync - a client-side async data synchronization cache",
	Long: `querysync is a demo command-line client around the querysync cache
library: structured keys, deduplicated fetches, retrying observers with
network- and focus-aware refetch, and scoped, retrying mutations.

Use "querysync [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cmdutil.Flags.ConfigPath, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/querysync/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
