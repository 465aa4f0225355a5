package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"deskauth/internal/config"
	"deskauth/pkg/auth"
	"deskauth/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates a session is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the sign-in or refresh was refused.
	ExitCodeAuthFailed = 3
	// ExitCodeEnvironment indicates a local problem: port, browser, storage.
	ExitCodeEnvironment = 4
)

var (
	configPath string
	logLevel   string
)

// rootCmd represents the base command for the deskauth application.
var rootCmd = &cobra.Command{
	Use:   "deskauth",
	Short: "Sign in to Google from the desktop",
	Long: `deskauth signs a desktop user in to Google with OAuth 2.0 and PKCE,
keeps the session refreshed and stores it encrypted on disk.

The session it maintains is the one a desktop application built on the
same core uses, so signing in or out here is reflected there.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logging.InitForCLI(level, cmd.ErrOrStderr())
		return nil
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "deskauth version %s\n" .Version}}`)

	// Interrupt cancels a pending sign-in or ends a watch.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		switch authFailed.Class {
		case auth.ClassEnvironment:
			return ExitCodeEnvironment
		case auth.ClassSessionInvalidated:
			return ExitCodeAuthRequired
		default:
			return ExitCodeAuthFailed
		}
	}

	var validation config.ValidationErrors
	if errors.As(err, &validation) {
		return ExitCodeEnvironment
	}

	return ExitCodeError
}

func defaultConfigPath() string {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return "config.yaml"
	}
	return path
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}
