package session

import (
	"context"
	"errors"
	"fmt"

	"deskauth/internal/browser"
	"deskauth/internal/callback"
	"deskauth/pkg/logging"
)

// SignIn runs one interactive sign-in: it binds the loopback listener,
// opens the browser at the authorization URL, waits for the redirect and
// exchanges the code. It blocks until the attempt succeeds, fails, times out
// or is cancelled, so hosts call it off their UI thread.
//
// A sign-in already in flight is cancelled first, and its listener unbound,
// before the new one binds.
func (c *Controller) SignIn(ctx context.Context) error {
	attemptCtx, p, err := c.beginAttempt(ctx)
	if err != nil {
		return err
	}
	defer close(p.done)
	defer p.cancel()

	if err := c.runAttempt(attemptCtx, p); err != nil {
		c.finishFailed(p, err)
		return err
	}
	return nil
}

// beginAttempt cancels any in-flight attempt and installs a new one in the
// signing_in state.
func (c *Controller) beginAttempt(ctx context.Context) (context.Context, *pendingAttempt, error) {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return nil, nil, ErrClosed
		}
		if c.state == SignedIn {
			c.mu.Unlock()
			return nil, nil, ErrAlreadySignedIn
		}
		prev := c.pending
		if prev == nil {
			break
		}
		prev.superseded = true
		prev.cancel()
		c.mu.Unlock()

		logging.Debug("Session", "Cancelling previous sign-in attempt %s", prev.id)
		select {
		case <-prev.done:
		case <-ctx.Done():
			// Nobody takes over from prev now; make sure the state leaves
			// signing_in.
			c.mu.Lock()
			if c.pending == prev {
				prev.superseded = false
			} else if c.pending == nil && c.state == SigningIn {
				c.signOutLocked()
			}
			c.mu.Unlock()
			return nil, nil, callback.ErrCancelled
		}
		c.mu.Lock()
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	p := &pendingAttempt{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.pending = p
	c.state = SigningIn
	c.lastErr = nil
	c.emitLocked()
	c.mu.Unlock()
	return attemptCtx, p, nil
}

func (c *Controller) runAttempt(ctx context.Context, p *pendingAttempt) error {
	listener, err := c.cfg.Bind(c.cfg.RedirectPort)
	if err != nil {
		logging.Error("Session", err, "Cannot bind redirect port %d (another instance may be running)", c.cfg.RedirectPort)
		return err
	}
	defer listener.Close()

	attempt, err := c.cfg.NewAttempt(listener.RedirectURI())
	if err != nil {
		return err
	}

	c.mu.Lock()
	p.id = attempt.ID
	c.mu.Unlock()

	logging.Info("Session", "Sign-in attempt %s started, waiting for redirect on %s", attempt.ID, attempt.RedirectURI)

	if err := c.cfg.Opener.Open(c.cfg.Client.AuthCodeURL(attempt)); err != nil {
		if !errors.Is(err, browser.ErrLaunchFailed) {
			err = fmt.Errorf("%w: %w", browser.ErrLaunchFailed, err)
		}
		return err
	}

	result, err := listener.AwaitRedirect(ctx, attempt.State, c.cfg.CallbackTimeout)
	if err != nil {
		return err
	}

	ts, err := c.cfg.Client.ExchangeCode(ctx, result.Code.Reveal(), attempt.CodeVerifier, attempt.RedirectURI)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.superseded || ctx.Err() != nil {
		return callback.ErrCancelled
	}
	if err := c.cfg.Store.Save(ts); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}

	c.pending = nil
	c.setSignedInLocked(ts, false)

	logging.Audit(logging.AuditEvent{
		Action:    "sign_in",
		Outcome:   "success",
		AttemptID: attempt.ID,
		Subject:   ts.Email,
	})
	return nil
}

// finishFailed reports a failed attempt unless a successor took over.
func (c *Controller) finishFailed(p *pendingAttempt, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == p {
		c.pending = nil
	}
	if p.superseded {
		logging.Debug("Session", "Sign-in attempt %s superseded", p.id)
		return
	}

	class := Classify(err)
	logging.Audit(logging.AuditEvent{
		Action:    "sign_in",
		Outcome:   string(class),
		AttemptID: p.id,
	})
	logging.Warn("Session", "Sign-in attempt %s failed (%s): %v", p.id, class, err)
	c.failLocked(err)
}

// CancelSignIn aborts the in-flight sign-in, if any, and returns once its
// listener is unbound. It reports whether an attempt was cancelled.
func (c *Controller) CancelSignIn() bool {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()
	if p == nil {
		return false
	}

	p.cancel()
	<-p.done
	return true
}

// SignOut ends the session: the refresh timer is stopped, the stored record
// cleared and the refresh token revoked at the provider on a best-effort
// basis.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	p := c.pending
	if p != nil {
		p.superseded = true
		p.cancel()
	}
	c.mu.Unlock()
	if p != nil {
		<-p.done
	}

	c.mu.Lock()
	tokens := c.tokens
	clearErr := c.cfg.Store.Clear()
	if c.state != SignedOut {
		c.signOutLocked()
	}
	c.mu.Unlock()

	if tokens != nil {
		revokeToken := tokens.RefreshToken
		if revokeToken.IsEmpty() {
			revokeToken = tokens.AccessToken
		}
		if err := c.cfg.Client.Revoke(ctx, revokeToken); err != nil {
			logging.Audit(logging.AuditEvent{Action: "revoke_failed", Outcome: "ignored", Subject: tokens.Email, Detail: err.Error()})
			logging.Warn("Session", "Token revocation failed, continuing sign-out: %v", err)
		}
	}

	logging.Audit(logging.AuditEvent{Action: "sign_out", Outcome: "success"})
	if clearErr != nil {
		return fmt.Errorf("failed to clear stored session: %w", clearErr)
	}
	return nil
}
