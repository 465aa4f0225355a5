package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deskauth/internal/config"
)

var (
	configInitClientID     string
	configInitIssuer       string
	configInitWatchStorage bool
	configInitForce        bool
)

// configCmd represents the config command group
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the deskauth configuration",
	Long: `Manage the deskauth configuration file.

Examples:
  deskauth config init --client-id <id>            # Write a config file
  deskauth config init --client-id <id> --force    # Overwrite an existing one

The client secret is never written to the file. Provide it through
GOOGLE_OAUTH_CLIENT_SECRET when the client type requires one.`,
	Args: cobra.NoArgs,
}

// configInitCmd writes a configuration file from the defaults
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Long: `Write a configuration file holding the defaults and the given client ID
to the path named by --config.

An existing file is left untouched unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if !configInitForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", configPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", configPath, err)
		}
	}

	cfg := config.GetDefaultConfig()
	cfg.ClientID = configInitClientID
	cfg.Issuer = configInitIssuer
	cfg.WatchStorage = configInitWatchStorage

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(configPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVar(&configInitClientID, "client-id", "", "OAuth client ID registered with the provider")
	configInitCmd.Flags().StringVar(&configInitIssuer, "issuer", "", "OIDC issuer to discover endpoints from")
	configInitCmd.Flags().BoolVar(&configInitWatchStorage, "watch-storage", false, "Follow session changes made by other processes")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
	_ = configInitCmd.MarkFlagRequired("client-id")
}
