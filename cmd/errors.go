package cmd

import (
	"fmt"

	"deskauth/pkg/auth"
)

// AuthRequiredError indicates a command needs a session and there is none.
type AuthRequiredError struct{}

// Error returns a user-friendly error message with actionable guidance.
func (e *AuthRequiredError) Error() string {
	return `Not signed in

To sign in, run:
  deskauth auth login`
}

// AuthFailedError indicates a sign-in or refresh failed.
type AuthFailedError struct {
	// Class is the failure class reported to the user.
	Class auth.ErrorClass
	// Reason is the underlying error.
	Reason error
}

// Error returns a user-friendly error message with the class's hint.
func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("Authentication failed (%s): %v\n\n%s", e.Class, e.Reason, e.Class.Hint())
}

// Unwrap returns the underlying error.
func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}
