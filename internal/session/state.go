package session

import (
	"context"
	"errors"

	"deskauth/internal/browser"
	"deskauth/internal/callback"
	"deskauth/internal/oauth"
	"deskauth/internal/tokenstore"
	"deskauth/pkg/auth"
)

// State is the controller's session state.
type State int

const (
	SignedOut State = iota
	SigningIn
	SignedIn
	Error
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case SignedOut:
		return "signed_out"
	case SigningIn:
		return "signing_in"
	case SignedIn:
		return "signed_in"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var (
	// ErrNotSignedIn is returned when an operation needs a session.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrAlreadySignedIn is returned by SignIn while a session exists.
	// Sign out first to switch accounts.
	ErrAlreadySignedIn = errors.New("already signed in")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session controller closed")

	// ErrTokenExpired means the access token has expired and could not be
	// refreshed yet.
	ErrTokenExpired = errors.New("access token expired")
)

// Classify maps an error from any stage of sign-in or refresh to the class
// reported to the user.
func Classify(err error) auth.ErrorClass {
	var providerErr *callback.ProviderError
	var exchangeErr *oauth.ExchangeError

	switch {
	case errors.Is(err, callback.ErrTimeout),
		errors.Is(err, callback.ErrCancelled),
		errors.Is(err, context.Canceled):
		return auth.ClassUserAbandoned

	case errors.As(err, &providerErr):
		if providerErr.UserAbandoned() {
			return auth.ClassUserAbandoned
		}
		return auth.ClassProviderRejected

	case errors.Is(err, callback.ErrStateMismatch),
		errors.Is(err, callback.ErrMalformedRedirect):
		return auth.ClassProviderRejected

	case errors.As(err, &exchangeErr):
		if exchangeErr.Transient() {
			return auth.ClassTransient
		}
		return auth.ClassProviderRejected

	case errors.Is(err, oauth.ErrRefreshTokenInvalid):
		return auth.ClassSessionInvalidated

	case errors.Is(err, oauth.ErrRefreshTransient),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, context.DeadlineExceeded):
		return auth.ClassTransient

	case errors.Is(err, callback.ErrPortUnavailable),
		errors.Is(err, oauth.ErrEntropyUnavailable),
		errors.Is(err, browser.ErrLaunchFailed),
		errors.Is(err, tokenstore.ErrStorage),
		errors.Is(err, tokenstore.ErrCorrupt):
		return auth.ClassEnvironment

	default:
		return auth.ClassEnvironment
	}
}

// statusError builds the notifier payload for err.
func statusError(err error) *auth.StatusError {
	return auth.NewStatusError(Classify(err), err.Error())
}
