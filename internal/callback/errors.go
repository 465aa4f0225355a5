package callback

import (
	"errors"
	"fmt"
)

var (
	// ErrPortUnavailable means the loopback port could not be bound.
	ErrPortUnavailable = errors.New("redirect port unavailable")

	// ErrStateMismatch means the redirect's state did not match the attempt.
	// The authorization code it carried has been discarded.
	ErrStateMismatch = errors.New("redirect state mismatch")

	// ErrMalformedRedirect means the redirect carried neither a code nor an
	// error.
	ErrMalformedRedirect = errors.New("malformed redirect")

	// ErrTimeout means no redirect arrived in time.
	ErrTimeout = errors.New("timed out waiting for redirect")

	// ErrCancelled means the wait was cancelled by the caller.
	ErrCancelled = errors.New("sign-in cancelled")
)

// ProviderError is an authorization error reported by the provider on the
// redirect.
type ProviderError struct {
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("provider returned error: %s", e.Code)
	}
	return fmt.Sprintf("provider returned error: %s (%s)", e.Code, e.Description)
}

// UserAbandoned reports whether the user declined consent.
func (e *ProviderError) UserAbandoned() bool {
	return e.Code == "access_denied"
}
