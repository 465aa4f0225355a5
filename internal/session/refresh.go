package session

import (
	"context"
	"errors"
	"time"

	"deskauth/internal/oauth"
	"deskauth/pkg/logging"
	"deskauth/pkg/secret"
)

// refreshKey is the single singleflight key: one session, one refresh.
const refreshKey = "refresh"

// Refresh refreshes the session now.
func (c *Controller) Refresh(ctx context.Context) error {
	_, err := c.refresh(ctx, "manual")
	return err
}

// ReportUnauthorized tells the controller that the downstream API rejected
// the access token rejected. Unless the token has already been replaced, a
// refresh is performed (or joined, if one is in flight) and the new access
// token returned. An empty rejected value always refreshes.
func (c *Controller) ReportUnauthorized(ctx context.Context, rejected secret.Value) (secret.Value, error) {
	c.mu.Lock()
	if c.state != SignedIn || c.tokens == nil {
		c.mu.Unlock()
		return secret.Value{}, ErrNotSignedIn
	}
	if !rejected.IsEmpty() && !c.tokens.AccessToken.Equal(rejected) && c.tokens.Valid(c.cfg.Now()) {
		current := c.tokens.AccessToken
		c.mu.Unlock()
		return current, nil
	}
	c.mu.Unlock()

	logging.Info("Session", "Access token rejected downstream, refreshing")
	ts, err := c.refresh(ctx, "unauthorized")
	if err != nil {
		return secret.Value{}, err
	}
	return ts.AccessToken, nil
}

// refresh performs or joins the in-flight refresh. The exchange runs on the
// controller's context so one caller giving up does not cancel it for the
// others.
func (c *Controller) refresh(ctx context.Context, trigger string) (*oauth.TokenSet, error) {
	ch := c.refreshGroup.DoChan(refreshKey, func() (interface{}, error) {
		return c.refreshOnce(trigger)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth.TokenSet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) refreshOnce(trigger string) (*oauth.TokenSet, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state != SignedIn || c.tokens == nil {
		c.mu.Unlock()
		return nil, ErrNotSignedIn
	}
	previous := c.tokens
	gen := c.generation
	c.mu.Unlock()

	logging.Debug("Session", "Refreshing token (trigger=%s)", trigger)
	fresh, err := c.cfg.Client.Refresh(c.baseCtx, previous)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.generation != gen {
		logging.Debug("Session", "Discarding refresh result for a replaced session")
		return nil, ErrNotSignedIn
	}

	switch {
	case err == nil:
		c.applyRefreshLocked(fresh)
		return fresh, nil

	case errors.Is(err, oauth.ErrRefreshTokenInvalid):
		logging.Warn("Session", "Refresh token rejected, signing out")
		if clearErr := c.cfg.Store.Clear(); clearErr != nil {
			logging.Error("Session", clearErr, "Failed to clear invalidated session")
		}
		c.failLocked(err)
		return nil, err

	default:
		c.retryLocked(err)
		return nil, err
	}
}

// retryLocked keeps the current session after a transient failure and
// schedules another attempt.
func (c *Controller) retryLocked(err error) {
	c.backoffAttempt++
	delay := c.backoff(c.backoffAttempt)

	c.lastErr = statusError(err)
	c.emitLocked()
	c.scheduleLocked(delay)

	logging.Warn("Session", "Token refresh failed, retrying in %s (attempt %d): %v", delay, c.backoffAttempt, err)
}

// backoff computes exponential backoff for the nth consecutive failure.
func (c *Controller) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return c.cfg.MaxBackoff
	}

	// Exponential backoff: initial * 2^(attempt-1)
	backoff := c.cfg.InitialBackoff * time.Duration(1<<uint(attempt-1))

	// Cap at max backoff
	if backoff > c.cfg.MaxBackoff || backoff <= 0 {
		backoff = c.cfg.MaxBackoff
	}
	return backoff
}

// refreshDelay is how long to wait before refreshing ts proactively. A
// token already inside the refresh lead is refreshed at once, unless it was
// itself just refreshed, in which case it waits half its lifetime so a
// provider issuing short tokens does not cause a refresh loop.
func (c *Controller) refreshDelay(ts *oauth.TokenSet, refreshed bool) time.Duration {
	now := c.cfg.Now()
	remaining := ts.ExpiresAt.Sub(now)
	if !ts.NeedsRefresh(now, c.cfg.RefreshLead) {
		return remaining - c.cfg.RefreshLead
	}
	if !refreshed {
		return 0
	}
	if half := remaining / 2; half > minRefreshInterval {
		return half
	}
	return minRefreshInterval
}

func (c *Controller) scheduleLocked(delay time.Duration) {
	c.stopTimerLocked()
	gen := c.generation
	c.timer = time.AfterFunc(delay, func() {
		c.onTimer(gen)
	})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// onTimer runs a scheduled refresh unless the session it was scheduled for
// is gone.
func (c *Controller) onTimer(gen uint64) {
	c.mu.Lock()
	stale := c.closed || c.generation != gen || c.state != SignedIn
	c.mu.Unlock()
	if stale {
		return
	}

	if _, err := c.refresh(c.baseCtx, "timer"); err != nil {
		logging.Debug("Session", "Scheduled refresh did not complete: %v", err)
	}
}
