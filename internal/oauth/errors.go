package oauth

import (
	"errors"
	"fmt"
)

var (
	// ErrEntropyUnavailable is returned when the system random source fails.
	ErrEntropyUnavailable = errors.New("secure random source unavailable")

	// ErrExchangeRejected marks a failed authorization code exchange.
	ErrExchangeRejected = errors.New("token exchange rejected")

	// ErrRefreshTokenInvalid means the provider no longer honours the
	// refresh token (invalid_grant) or there is none to use.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")

	// ErrRefreshTransient is any other refresh failure. The session keeps
	// its current tokens and tries again later.
	ErrRefreshTransient = errors.New("token refresh failed")
)

// ExchangeError describes a failed code exchange. It wraps
// ErrExchangeRejected and, when there is one, the underlying cause.
type ExchangeError struct {
	// StatusCode is the HTTP status of the token endpoint, 0 when no
	// response was received.
	StatusCode int

	// Code and Description are the RFC 6749 error fields, when present.
	Code        string
	Description string

	Err error

	transient bool
}

func (e *ExchangeError) Error() string {
	switch {
	case e.Code != "" && e.Description != "":
		return fmt.Sprintf("%s: %s (%s)", ErrExchangeRejected, e.Code, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s: %s", ErrExchangeRejected, e.Code)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: HTTP %d", ErrExchangeRejected, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrExchangeRejected, e.Err)
	default:
		return ErrExchangeRejected.Error()
	}
}

func (e *ExchangeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExchangeRejected}
	}
	return []error{ErrExchangeRejected, e.Err}
}

// Transient reports whether the failure was a network error or a 5xx,
// as opposed to the provider refusing the request.
func (e *ExchangeError) Transient() bool {
	return e.transient
}
