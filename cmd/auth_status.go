package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"deskauth/internal/oauth"
	"deskauth/pkg/auth"
)

// Status-specific flags
var (
	statusJSON bool
)

// nowFunc is replaced in tests.
var nowFunc = time.Now

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session",
	Long: `Show whether a session exists, for which account, and when its
access token expires. With --json the status is printed in the same shape
the desktop application receives.`,
	RunE: runAuthStatus,
}

func init() {
	authStatusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.ctrl.Status()
	if statusJSON {
		return writeStatusJSON(out, st)
	}

	var ts *oauth.TokenSet
	if st.IsAuthenticated {
		ts, _ = a.store.Load()
	}
	renderStatusTable(out, st, ts, a.store.Path(), nowFunc())
	return nil
}

func writeStatusJSON(w io.Writer, st auth.Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

// statusRows builds the rows of the status table. ts may be nil.
func statusRows(st auth.Status, ts *oauth.TokenSet, storagePath string, now time.Time) []table.Row {
	rows := []table.Row{
		{"Status", formatSessionState(st)},
	}
	if st.IsAuthenticated {
		rows = append(rows, table.Row{"Account", displayName(st)})
	}
	if ts != nil {
		rows = append(rows, table.Row{"Expires", formatExpiry(ts.ExpiresAt, now)})
		if ts.CanRefresh() {
			rows = append(rows, table.Row{"Refresh", text.FgGreen.Sprint("Available")})
		} else {
			rows = append(rows, table.Row{"Refresh", text.FgYellow.Sprint("Not available (sign in again on expiry)")})
		}
	}
	if st.Error != nil {
		rows = append(rows,
			table.Row{"Error", text.FgRed.Sprintf("%s: %s", st.Error.Class, st.Error.Message)},
			table.Row{"Hint", st.Error.Hint},
		)
	}
	rows = append(rows, table.Row{"Storage", storagePath})
	return rows
}

func renderStatusTable(w io.Writer, st auth.Status, ts *oauth.TokenSet, storagePath string, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendRows(statusRows(st, ts, storagePath, now))
	t.Render()
}

// formatSessionState returns a colored description of the session state.
func formatSessionState(st auth.Status) string {
	switch st.State {
	case "signed_in":
		if st.Error != nil {
			return text.FgYellow.Sprint("Signed in (refresh pending)")
		}
		return text.FgGreen.Sprint("Signed in")
	case "signing_in":
		return text.FgCyan.Sprint("Signing in")
	case "signed_out":
		return text.FgYellow.Sprint("Not signed in")
	case "error":
		return text.FgRed.Sprint("Error")
	default:
		return text.FgHiBlack.Sprint(st.State)
	}
}

// formatExpiry renders t relative to now, e.g. "in 59m" or "3m ago".
func formatExpiry(t, now time.Time) string {
	d := t.Sub(now).Round(time.Second)
	stamp := t.Local().Format("15:04:05")
	if d >= 0 {
		return fmt.Sprintf("in %s (%s)", shortDuration(d), stamp)
	}
	return text.FgRed.Sprintf("%s ago (%s)", shortDuration(-d), stamp)
}

func shortDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}
