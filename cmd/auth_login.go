package cmd

import (
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"deskauth/internal/browser"
	"deskauth/internal/session"
)

// Login-specific flags
var (
	loginNoBrowser bool
)

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with the browser",
	Long: `Sign in to Google using the OAuth authorization code flow with PKCE.

The browser is opened at Google's consent page; after approval it is
redirected to a listener on http://localhost:<redirectPort>/ and the code is
exchanged for tokens, which are stored encrypted.

Examples:
  deskauth auth login                  # Open the browser
  deskauth auth login --no-browser     # Print the URL to open elsewhere`,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL instead of opening the browser")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	opts := appOptions{out: out}
	if loginNoBrowser {
		opts.opener = browser.Printer{W: out}
	}

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.ctrl.State() == session.SignedIn {
		authPrint(out, "Already signed in as %s.\nRun 'deskauth auth logout' first to switch accounts.\n", displayName(a.ctrl.Status()))
		return nil
	}

	var s *spinner.Spinner
	if !authQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Writer = cmd.ErrOrStderr()
		s.Suffix = " Waiting for sign-in to complete in the browser..."
		s.Start()
	}

	err = a.ctrl.SignIn(ctx)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		return authFailure(err)
	}

	authPrint(out, "%s Signed in as %s\n", text.FgGreen.Sprint("✓"), displayName(a.ctrl.Status()))
	return nil
}
