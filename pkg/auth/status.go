package auth

// Status is the public projection of the session that the host receives on
// every state transition. It never carries token material.
type Status struct {
	IsAuthenticated bool `json:"is_authenticated"`

	// Email and Name are display identity only, nil when unknown.
	Email *string `json:"email"`
	Name  *string `json:"name"`

	// State is one of: "signed_out", "signing_in", "signed_in", "error"
	State string `json:"state"`

	// Error is present when State == "error"
	Error *StatusError `json:"error,omitempty"`
}

// StatusError describes a failure in terms the host can show to a user.
type StatusError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
	Hint    string     `json:"hint,omitempty"`
}

// Error makes StatusError usable as an error value.
func (e *StatusError) Error() string {
	return string(e.Class) + ": " + e.Message
}

// ErrorClass groups failures by what the user can do about them.
type ErrorClass string

const (
	ClassUserAbandoned      ErrorClass = "user_abandoned"
	ClassProviderRejected   ErrorClass = "provider_rejected"
	ClassTransient          ErrorClass = "transient"
	ClassSessionInvalidated ErrorClass = "session_invalidated"
	ClassEnvironment        ErrorClass = "environment"
)

// Hint returns the remediation text shown alongside an error of this class.
func (c ErrorClass) Hint() string {
	switch c {
	case ClassUserAbandoned:
		return "Sign-in was not completed. Start it again when ready."
	case ClassProviderRejected:
		return "The provider rejected the sign-in. Try again, and check the client configuration if it keeps failing."
	case ClassTransient:
		return "The provider could not be reached. Check the network connection and retry."
	case ClassSessionInvalidated:
		return "The saved session is no longer valid. Sign in again."
	case ClassEnvironment:
		return "A local resource is unavailable (port, browser, storage or randomness). Free the redirect port or check permissions, then retry."
	default:
		return ""
	}
}

// NewStatusError builds a StatusError with the class's hint filled in.
func NewStatusError(class ErrorClass, message string) *StatusError {
	return &StatusError{Class: class, Message: message, Hint: class.Hint()}
}

// StringPtr returns nil for an empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
