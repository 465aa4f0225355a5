package callback

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"deskauth/pkg/logging"
	"deskauth/pkg/secret"
)

// DefaultPort is the loopback port registered with the provider.
const DefaultPort = 8080

// DefaultTimeout is how long a sign-in waits for the redirect.
const DefaultTimeout = 5 * time.Minute

// shutdownTimeout bounds how long Close waits for an in-flight response.
const shutdownTimeout = 5 * time.Second

var (
	//go:embed templates/success.html
	successHTML string

	//go:embed templates/error.html
	errorHTML string

	successPage = template.Must(template.New("success").Parse(successHTML))
	errorPage   = template.Must(template.New("error").Parse(errorHTML))
)

// Result is a redirect that passed validation.
type Result struct {
	Code       secret.Value
	ReceivedAt time.Time
}

type outcome struct {
	result *Result
	err    error
}

// Listener receives exactly one authorization redirect on the loopback
// interface. It is bound by Bind and unbound by Close, or automatically once
// the redirect is handled.
type Listener struct {
	port     int
	listener net.Listener
	server   *http.Server

	mu            sync.Mutex
	expectedState string
	armed         chan struct{}
	awaiting      bool

	handled   sync.Once
	outcomeCh chan outcome
	serveErr  chan error

	done      chan struct{}
	closeOnce sync.Once
}

// Bind listens on 127.0.0.1:port. Port 0 picks a free port.
//
// Only the IPv4 loopback is bound while RedirectURI names localhost, the
// form Google accepts for desktop clients. A browser resolving localhost to
// ::1 first gets a refused connection there and falls back to 127.0.0.1;
// Go's own dialer does the same, which the tests rely on.
func Bind(port int) (*Listener, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPortUnavailable, addr, err)
	}

	l := &Listener{
		port:      ln.Addr().(*net.TCPAddr).Port,
		listener:  ln,
		armed:     make(chan struct{}),
		outcomeCh: make(chan outcome, 1),
		serveErr:  make(chan error, 1),
		done:      make(chan struct{}),
	}

	l.server = &http.Server{
		Handler:           http.HandlerFunc(l.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.server.SetKeepAlivesEnabled(false)

	go func() {
		err := l.server.Serve(ln)
		select {
		case <-l.done:
			return
		default:
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			select {
			case l.serveErr <- err:
			default:
			}
		}
	}()

	logging.Info("Callback", "Listening for redirect on %s", addr)
	return l, nil
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.port
}

// RedirectURI returns the redirect URI to register in the authorization
// request.
func (l *Listener) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d/", l.port)
}

// AwaitRedirect waits for the redirect and validates it against
// expectedState. The listener is closed when it returns, whatever the
// outcome. It may be called once per Listener.
func (l *Listener) AwaitRedirect(ctx context.Context, expectedState string, timeout time.Duration) (*Result, error) {
	l.mu.Lock()
	if l.awaiting {
		l.mu.Unlock()
		return nil, errors.New("listener is already awaiting a redirect")
	}
	l.awaiting = true
	l.expectedState = expectedState
	close(l.armed)
	l.mu.Unlock()

	defer l.Close()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-l.outcomeCh:
		return o.result, o.err
	case err := <-l.serveErr:
		return nil, fmt.Errorf("%w: %w", ErrPortUnavailable, err)
	case <-timer.C:
		logging.Info("Callback", "No redirect received within %s", timeout)
		return nil, ErrTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrCancelled
	case <-l.done:
		return nil, ErrCancelled
	}
}

// Close unbinds the listener. It is idempotent and returns once the port is
// released.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// The listener may already be closed by the handler.
		if shutdownErr := l.server.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, net.ErrClosed) {
			err = shutdownErr
			_ = l.server.Close()
		}
		_ = l.listener.Close()

		logging.Debug("Callback", "Listener on port %d closed", l.port)
	})
	return err
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// A redirect can beat AwaitRedirect to the socket; hold it until the
	// expected state is known.
	select {
	case <-l.armed:
	case <-l.done:
		http.Error(w, "sign-in is no longer pending", http.StatusServiceUnavailable)
		return
	case <-r.Context().Done():
		return
	}

	handled := false
	l.handled.Do(func() {
		handled = true
		// Stop accepting before answering so a second connection is refused.
		_ = l.listener.Close()
		o := l.process(w, r)
		l.outcomeCh <- o
	})
	if !handled {
		http.Error(w, "redirect already processed", http.StatusGone)
	}
}

func (l *Listener) process(w http.ResponseWriter, r *http.Request) outcome {
	setSecurityHeaders(w)

	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")
	providerErr := query.Get("error")

	l.mu.Lock()
	expected := l.expectedState
	l.mu.Unlock()

	// Nothing in the query is trusted until the state matches, error
	// redirects included.
	switch {
	case subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1:
		detail := "authorization code discarded"
		if providerErr != "" {
			detail = "provider error redirect discarded"
		}
		logging.Audit(logging.AuditEvent{
			Action:  "state_mismatch",
			Outcome: "rejected",
			Detail:  detail,
		})
		renderError(w, http.StatusBadRequest, "state_mismatch", "The sign-in response did not match the pending request.")
		return outcome{err: ErrStateMismatch}

	case providerErr != "":
		pe := &ProviderError{Code: providerErr, Description: query.Get("error_description")}
		logging.Warn("Callback", "Provider returned error %q", pe.Code)
		renderError(w, http.StatusOK, pe.Code, pe.Description)
		return outcome{err: pe}

	case code == "":
		logging.Warn("Callback", "Redirect carried neither code nor error")
		renderError(w, http.StatusBadRequest, "invalid_request", "The redirect did not include an authorization code.")
		return outcome{err: ErrMalformedRedirect}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := successPage.Execute(w, nil); err != nil {
		logging.Debug("Callback", "Failed to write success page: %v", err)
	}

	logging.Info("Callback", "Authorization code received")
	return outcome{result: &Result{Code: secret.New(code), ReceivedAt: time.Now()}}
}

func renderError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := map[string]string{
		"Error":       code,
		"Description": description,
	}
	if err := errorPage.Execute(w, data); err != nil {
		logging.Debug("Callback", "Failed to write error page: %v", err)
	}
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
}
