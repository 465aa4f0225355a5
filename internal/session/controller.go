package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"deskauth/internal/browser"
	"deskauth/internal/callback"
	"deskauth/internal/oauth"
	"deskauth/internal/tokenstore"
	"deskauth/pkg/auth"
	"deskauth/pkg/logging"
	"deskauth/pkg/secret"
)

const (
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 5 * time.Minute

	// accessMargin keeps AccessToken from handing out a token that expires
	// while the caller's request is in flight.
	accessMargin = 10 * time.Second

	// minRefreshInterval is the shortest delay before re-refreshing a token
	// that was itself just obtained by a refresh.
	minRefreshInterval = 5 * time.Second
)

// TokenClient talks to the provider's token and revocation endpoints.
type TokenClient interface {
	AuthCodeURL(a *oauth.Attempt) string
	ExchangeCode(ctx context.Context, code string, verifier secret.Value, redirectURI string) (*oauth.TokenSet, error)
	Refresh(ctx context.Context, previous *oauth.TokenSet) (*oauth.TokenSet, error)
	Revoke(ctx context.Context, token secret.Value) error
}

// Store persists the TokenSet.
type Store interface {
	Save(ts *oauth.TokenSet) error
	Load() (*oauth.TokenSet, error)
	Clear() error
}

// Listener is one bound loopback redirect listener.
type Listener interface {
	RedirectURI() string
	AwaitRedirect(ctx context.Context, expectedState string, timeout time.Duration) (*callback.Result, error)
	Close() error
}

// Config wires a Controller.
type Config struct {
	Client   TokenClient
	Store    Store
	Notifier Notifier
	Opener   browser.Opener

	RedirectPort    int
	CallbackTimeout time.Duration
	RefreshLead     time.Duration

	// InitialBackoff and MaxBackoff bound retries of transient refresh
	// failures.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Bind and NewAttempt default to callback.Bind and oauth.BeginAttempt.
	Bind       func(port int) (Listener, error)
	NewAttempt func(redirectURI string) (*oauth.Attempt, error)

	// Now defaults to time.Now.
	Now func() time.Time
}

// pendingAttempt is the one in-flight sign-in.
type pendingAttempt struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	// superseded is set when a newer SignIn or a SignOut takes over; the
	// attempt then leaves the state to its successor.
	superseded bool
}

// Controller owns the session. All methods are safe for concurrent use.
type Controller struct {
	cfg      Config
	dispatch *dispatcher

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	state   State
	tokens  *oauth.TokenSet
	lastErr *auth.StatusError
	pending *pendingAttempt
	started bool
	closed  bool

	// generation changes whenever the TokenSet is replaced or dropped, so
	// timers and refreshes started for an older session do nothing.
	generation     uint64
	timer          *time.Timer
	backoffAttempt int

	refreshGroup singleflight.Group
}

// New creates a Controller in the SignedOut state. Call Start to restore a
// persisted session.
func New(cfg Config) (*Controller, error) {
	if cfg.Client == nil {
		return nil, errors.New("token client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Opener == nil {
		cfg.Opener = browser.System{}
	}
	if cfg.RedirectPort == 0 {
		cfg.RedirectPort = callback.DefaultPort
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = callback.DefaultTimeout
	}
	if cfg.RefreshLead <= 0 {
		cfg.RefreshLead = oauth.TokenRefreshThreshold
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.Bind == nil {
		cfg.Bind = func(port int) (Listener, error) {
			return callback.Bind(port)
		}
	}
	if cfg.NewAttempt == nil {
		cfg.NewAttempt = oauth.BeginAttempt
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:        cfg,
		dispatch:   newDispatcher(cfg.Notifier),
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      SignedOut,
	}, nil
}

// Start restores the persisted session. An expired session is refreshed
// before anything is emitted, so a successful refresh is observed as a
// single signed_in status.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("controller already started")
	}
	c.started = true
	c.mu.Unlock()

	ts, err := c.cfg.Store.Load()
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		c.emitCurrent()
		return nil

	case errors.Is(err, tokenstore.ErrCorrupt):
		logging.Warn("Session", "Discarding unreadable stored session")
		if clearErr := c.cfg.Store.Clear(); clearErr != nil {
			logging.Error("Session", clearErr, "Failed to clear unreadable session")
		}
		c.mu.Lock()
		c.failLocked(err)
		c.mu.Unlock()
		return nil

	case err != nil:
		c.mu.Lock()
		c.failLocked(err)
		c.mu.Unlock()
		return fmt.Errorf("failed to load session: %w", err)
	}

	now := c.cfg.Now()
	if ts.Valid(now) {
		c.mu.Lock()
		c.setSignedInLocked(ts, false)
		c.mu.Unlock()
		logging.Info("Session", "Restored session, token expires at %s", ts.ExpiresAt.Format(time.RFC3339))
		return nil
	}

	logging.Info("Session", "Stored session expired, refreshing before startup")
	fresh, err := c.cfg.Client.Refresh(ctx, ts)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	switch {
	case err == nil:
		c.applyRefreshLocked(fresh)
		return nil

	case errors.Is(err, oauth.ErrRefreshTokenInvalid):
		if clearErr := c.cfg.Store.Clear(); clearErr != nil {
			logging.Error("Session", clearErr, "Failed to clear invalidated session")
		}
		c.failLocked(err)
		return nil

	default:
		// Keep the expired session and retry; the provider may just be
		// unreachable.
		c.tokens = ts
		c.state = SignedIn
		c.generation++
		c.retryLocked(err)
		return nil
	}
}

// Status returns the current public projection of the session.
func (c *Controller) Status() auth.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HasValidToken reports whether an unexpired access token is held.
func (c *Controller) HasValidToken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == SignedIn && c.tokens.Valid(c.cfg.Now())
}

// AccessToken returns a usable access token, refreshing first when the
// current one has expired or is about to.
func (c *Controller) AccessToken(ctx context.Context) (secret.Value, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return secret.Value{}, ErrClosed
	}
	if c.state != SignedIn || c.tokens == nil {
		c.mu.Unlock()
		return secret.Value{}, ErrNotSignedIn
	}
	ts := c.tokens
	now := c.cfg.Now()
	c.mu.Unlock()

	if ts.Valid(now.Add(accessMargin)) {
		return ts.AccessToken, nil
	}

	fresh, err := c.refresh(ctx, "access")
	if err != nil {
		if ts.Valid(c.cfg.Now()) {
			// Still usable for a few seconds.
			return ts.AccessToken, nil
		}
		if errors.Is(err, oauth.ErrRefreshTransient) {
			return secret.Value{}, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return secret.Value{}, err
	}
	return fresh.AccessToken, nil
}

// Close stops timers, cancels a pending sign-in and delivers queued
// statuses. It must not be called from a Notifier.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	c.generation++
	p := c.pending
	if p != nil {
		p.superseded = true
		p.cancel()
	}
	c.mu.Unlock()

	if p != nil {
		<-p.done
	}
	c.baseCancel()
	c.dispatch.close()
	return nil
}

// ReloadFromStore brings the session in line with the persisted record,
// after another process signed in or out.
func (c *Controller) ReloadFromStore() {
	ts, err := c.cfg.Store.Load()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == SigningIn {
		return
	}

	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		if c.state == SignedIn {
			logging.Info("Session", "Session was signed out by another process")
			c.signOutLocked()
		}
	case err != nil:
		logging.Warn("Session", "Ignoring unreadable stored session: %v", err)
	case ts.Valid(c.cfg.Now()):
		if c.tokens != nil && c.tokens.AccessToken.Equal(ts.AccessToken) {
			return
		}
		logging.Info("Session", "Session was updated by another process")
		c.setSignedInLocked(ts, false)
	}
}

func (c *Controller) statusLocked() auth.Status {
	st := auth.Status{State: c.state.String()}
	if c.state == SignedIn && c.tokens != nil {
		st.IsAuthenticated = true
		st.Email = auth.StringPtr(c.tokens.Email)
		st.Name = auth.StringPtr(c.tokens.Name)
	}
	if c.lastErr != nil {
		errCopy := *c.lastErr
		st.Error = &errCopy
	}
	return st
}

func (c *Controller) emitLocked() {
	c.dispatch.push(c.statusLocked())
}

func (c *Controller) emitCurrent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitLocked()
}

// setSignedInLocked installs ts as the session and schedules its refresh.
func (c *Controller) setSignedInLocked(ts *oauth.TokenSet, refreshed bool) {
	c.installLocked(ts, refreshed, nil)
}

// applyRefreshLocked persists a refreshed token set and installs it. A failed
// save keeps the session and is reported on the signed_in status.
func (c *Controller) applyRefreshLocked(fresh *oauth.TokenSet) {
	var saveErr error
	if err := c.cfg.Store.Save(fresh); err != nil {
		logging.Error("Session", err, "Failed to persist refreshed session")
		saveErr = fmt.Errorf("failed to persist refreshed session: %w", err)
	}
	c.installLocked(fresh, true, saveErr)
}

func (c *Controller) installLocked(ts *oauth.TokenSet, refreshed bool, warn error) {
	c.tokens = ts
	c.state = SignedIn
	c.lastErr = nil
	if warn != nil {
		c.lastErr = statusError(warn)
	}
	c.generation++
	c.backoffAttempt = 0
	c.scheduleLocked(c.refreshDelay(ts, refreshed))
	c.emitLocked()
}

// failLocked reports err as an error state followed by signed_out.
func (c *Controller) failLocked(err error) {
	c.stopTimerLocked()
	c.generation++
	c.tokens = nil

	c.state = Error
	c.lastErr = statusError(err)
	c.emitLocked()

	c.state = SignedOut
	c.lastErr = nil
	c.emitLocked()
}

// signOutLocked drops the in-memory session and emits signed_out.
func (c *Controller) signOutLocked() {
	c.stopTimerLocked()
	c.generation++
	c.tokens = nil
	c.lastErr = nil
	c.state = SignedOut
	c.emitLocked()
}
