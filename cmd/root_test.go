package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"deskauth/internal/callback"
	"deskauth/internal/config"
	"deskauth/internal/oauth"
	"deskauth/pkg/auth"
)

func TestSetVersion(t *testing.T) {
	testVersion := "1.2.3-test"
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()

	SetVersion(testVersion)

	if GetVersion() != testVersion {
		t.Errorf("Expected version to be %s, got %s", testVersion, GetVersion())
	}
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "deskauth" {
		t.Errorf("Expected Use to be 'deskauth', got %s", rootCmd.Use)
	}

	if rootCmd.Short == "" {
		t.Error("Expected Short description to be set")
	}

	if !rootCmd.SilenceUsage {
		t.Error("Expected SilenceUsage to be true")
	}

	for _, name := range []string{"config", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag --%s", name)
		}
	}
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "deskauth version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	if err := testCmd.Execute(); err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}

	if buf.String() != "deskauth version 1.0.0\n" {
		t.Errorf("Unexpected version output %q", buf.String())
	}
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		found[cmd.Name()] = true
	}
	for _, expected := range []string{"version", "auth"} {
		if !found[expected] {
			t.Errorf("Expected subcommand %s to be registered", expected)
		}
	}

	authSub := make(map[string]bool)
	for _, cmd := range authCmd.Commands() {
		authSub[cmd.Name()] = true
	}
	for _, expected := range []string{"login", "logout", "status", "refresh", "token", "watch"} {
		if !authSub[expected] {
			t.Errorf("Expected auth subcommand %s to be registered", expected)
		}
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"generic", errors.New("boom"), ExitCodeError},
		{"auth required", &AuthRequiredError{}, ExitCodeAuthRequired},
		{"wrapped auth required", fmt.Errorf("status: %w", &AuthRequiredError{}), ExitCodeAuthRequired},
		{"provider rejected", &AuthFailedError{Class: auth.ClassProviderRejected, Reason: callback.ErrStateMismatch}, ExitCodeAuthFailed},
		{"user abandoned", &AuthFailedError{Class: auth.ClassUserAbandoned, Reason: callback.ErrTimeout}, ExitCodeAuthFailed},
		{"session invalidated", &AuthFailedError{Class: auth.ClassSessionInvalidated, Reason: oauth.ErrRefreshTokenInvalid}, ExitCodeAuthRequired},
		{"environment", &AuthFailedError{Class: auth.ClassEnvironment, Reason: callback.ErrPortUnavailable}, ExitCodeEnvironment},
		{"invalid config", fmt.Errorf("invalid configuration: %w", config.ValidationErrors{{Field: "clientId", Message: "is required"}}), ExitCodeEnvironment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getExitCode(tt.err); got != tt.want {
				t.Errorf("getExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestAuthFailedError(t *testing.T) {
	err := &AuthFailedError{Class: auth.ClassProviderRejected, Reason: callback.ErrStateMismatch}

	if !errors.Is(err, callback.ErrStateMismatch) {
		t.Error("Expected AuthFailedError to unwrap to its reason")
	}
	if !strings.Contains(err.Error(), auth.ClassProviderRejected.Hint()) {
		t.Errorf("Expected the class hint in %q", err.Error())
	}
}
