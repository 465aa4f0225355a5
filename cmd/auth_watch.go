package cmd

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"deskauth/internal/session"
	"deskauth/pkg/auth"
	"deskauth/pkg/logging"
)

// authWatchCmd represents the auth watch command
var authWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session changes",
	Long: `Run the session core until interrupted, printing every status as one
JSON line. Tokens are refreshed as they near expiry, and sign-ins or
sign-outs made by other processes are picked up from the stored record.`,
	RunE: runAuthWatch,
}

// jsonLineNotifier writes each status as a JSON line.
type jsonLineNotifier struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONLineNotifier(w io.Writer) *jsonLineNotifier {
	return &jsonLineNotifier{enc: json.NewEncoder(w)}
}

func (n *jsonLineNotifier) Notify(st auth.Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.enc.Encode(st); err != nil {
		logging.Warn("CLI", "Failed to write status: %v", err)
	}
}

func runAuthWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, appOptions{
		notifier: newJSONLineNotifier(cmd.OutOrStdout()),
		watch:    true,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	<-ctx.Done()
	logging.Debug("CLI", "Watch stopped in state %s", a.ctrl.State())
	return nil
}

var _ session.Notifier = (*jsonLineNotifier)(nil)
