// Package cmdutil provides shared state and bootstrap helpers for
// querysync commands.
package cmdutil

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values synced from the root command's
// PersistentPreRun.
type GlobalFlags struct {
	ConfigPath string
	Output     string
	NoColor    bool
	Verbose    bool
}
