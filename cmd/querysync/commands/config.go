package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/resyncio/querysync/internal/cli/output"
	"github.com/resyncio/querysync/internal/cli/prompt"
	"github.com/resyncio/querysync/pkg/config"
)

var (
	configInitForce       bool
	configInitInteractive bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the querysync configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a fully-defaulted configuration file to the path given by
--config, or to the default location if --config is omitted.

Examples:
  querysync config init
  querysync config init --config ./querysync.yaml --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	Long:  `Load configuration from file, environment, and defaults, then print the result.`,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVarP(&configInitInteractive, "interactive", "i", false, "prompt for the Badger backend path and cache size instead of writing pure defaults")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		overwrite := configInitForce
		if !overwrite && configInitInteractive {
			overwrite, err = prompt.Confirm(fmt.Sprintf("%s already exists, overwrite?", path), false)
			if err != nil {
				return fmt.Errorf("confirm overwrite: %w", err)
			}
		}
		if !overwrite {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultConfig()
	if configInitInteractive {
		if err := promptBackendConfig(&cfg.Backends.Badger); err != nil {
			return err
		}
		if err := promptAuthConfig(&cfg.Backends.Auth); err != nil {
			return err
		}
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("configuration written to %s\n", path)
	return nil
}

// promptBackendConfig walks the operator through the Badger backend's
// on-disk path and block cache size for `config init --interactive`.
func promptBackendConfig(cfg *config.BadgerBackendConfig) error {
	path, err := prompt.InputOptional("Badger data directory (blank to leave unconfigured)")
	if err != nil {
		return fmt.Errorf("prompt for badger path: %w", err)
	}
	if path == "" {
		return nil
	}
	cfg.Path = path

	size, err := prompt.Select("Block cache size", []prompt.SelectOption{
		{Label: "64MiB", Value: "64MiB"},
		{Label: "256MiB", Value: "256MiB"},
		{Label: "1GiB", Value: "1GiB"},
	})
	if err != nil {
		return fmt.Errorf("prompt for cache size: %w", err)
	}
	if err := cfg.MaxCacheSize.UnmarshalText([]byte(size)); err != nil {
		return fmt.Errorf("parse cache size: %w", err)
	}
	return nil
}

// promptAuthConfig optionally sets up pkg/fetchers/auth's JWT signing
// key during an interactive config init.
func promptAuthConfig(cfg *config.AuthBackendConfig) error {
	enable, err := prompt.Confirm("Configure the auth backend's JWT signing key now?", false)
	if err != nil {
		return fmt.Errorf("confirm auth setup: %w", err)
	}
	if !enable {
		return nil
	}

	key, err := prompt.NewPassword()
	if err != nil {
		return fmt.Errorf("prompt for signing key: %w", err)
	}
	cfg.SigningKey = key
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	return output.PrintYAML(os.Stdout, cfg)
}
