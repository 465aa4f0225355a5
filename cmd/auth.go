package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"deskauth/internal/session"
	"deskauth/pkg/auth"
)

var authQuiet bool

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the Google session",
	Long: `Manage the Google session shared with the desktop application.

Examples:
  deskauth auth login                  # Sign in with the browser
  deskauth auth login --no-browser     # Print the URL instead of opening it
  deskauth auth status                 # Show the session
  deskauth auth status --json          # Show the session as JSON
  deskauth auth refresh                # Force a token refresh
  deskauth auth token                  # Print a valid access token
  deskauth auth watch                  # Follow session changes
  deskauth auth logout                 # Sign out and revoke the session`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and revoke the session",
	Long: `Sign out: the stored session is removed and its refresh token revoked
at the provider. Revocation is best effort; the local session is removed
even when the provider cannot be reached.`,
	RunE: runAuthLogout,
}

// authRefreshCmd represents the auth refresh command
var authRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force token refresh",
	Long: `Force a refresh of the access token.

This can be useful when a token was revoked or the clock was changed.`,
	RunE: runAuthRefresh,
}

// authTokenCmd represents the auth token command
var authTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a valid access token",
	Long: `Print an access token for the signed-in account, refreshing it first
if it expired. The token is written to stdout only, for use in scripts:

  curl -H "Authorization: Bearer $(deskauth auth token)" ...`,
	RunE: runAuthToken,
}

// authPrint prints output only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(w io.Writer, format string, args ...interface{}) {
	if !authQuiet {
		fmt.Fprintf(w, format, args...)
	}
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRefreshCmd)
	authCmd.AddCommand(authTokenCmd)
	authCmd.AddCommand(authWatchCmd)

	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress non-essential output")
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.ctrl.State() != session.SignedIn {
		authPrint(out, "Not signed in.\n")
		return nil
	}

	who := displayName(a.ctrl.Status())
	if err := a.ctrl.SignOut(cmd.Context()); err != nil {
		return authFailure(err)
	}
	authPrint(out, "%s Signed out %s\n", text.FgGreen.Sprint("✓"), who)
	return nil
}

func runAuthRefresh(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ctrl.Refresh(cmd.Context()); err != nil {
		if errors.Is(err, session.ErrNotSignedIn) {
			return &AuthRequiredError{}
		}
		return authFailure(err)
	}

	if ts, err := a.store.Load(); err == nil {
		authPrint(out, "%s Token refreshed, expires %s\n", text.FgGreen.Sprint("✓"), formatExpiry(ts.ExpiresAt, nowFunc()))
	} else {
		authPrint(out, "%s Token refreshed\n", text.FgGreen.Sprint("✓"))
	}
	return nil
}

func runAuthToken(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	token, err := a.ctrl.AccessToken(cmd.Context())
	if err != nil {
		if errors.Is(err, session.ErrNotSignedIn) {
			return &AuthRequiredError{}
		}
		return authFailure(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token.Reveal())
	return nil
}

// displayName is the account shown to the user.
func displayName(st auth.Status) string {
	switch {
	case st.Email != nil && st.Name != nil:
		return fmt.Sprintf("%s <%s>", *st.Name, *st.Email)
	case st.Email != nil:
		return *st.Email
	case st.Name != nil:
		return *st.Name
	default:
		return "(unknown account)"
	}
}
