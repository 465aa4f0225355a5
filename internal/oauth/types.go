package oauth

import (
	"time"

	"deskauth/pkg/secret"
)

const (
	// DefaultRequestTimeout bounds every request to the provider.
	DefaultRequestTimeout = 30 * time.Second

	// MinTokenLifetime is the shortest lifetime accepted from a token
	// response. Shorter, missing or non-positive expires_in values are
	// clamped to it, which places the token inside the refresh window.
	MinTokenLifetime = 30 * time.Second

	// TokenRefreshThreshold is how long before expiry a token is refreshed.
	TokenRefreshThreshold = 5 * time.Minute
)

// Attempt is one pending sign-in. It is created by BeginAttempt and lives
// until the redirect arrives, the wait times out or it is cancelled.
type Attempt struct {
	// ID correlates log lines of one attempt. It is not sent anywhere.
	ID string

	// State is the CSRF binding echoed back on the redirect.
	State string

	CodeVerifier  secret.Value
	CodeChallenge string

	CreatedAt   time.Time
	RedirectURI string
}

// TokenSet is the credential material of a signed-in session. It is always
// replaced as a whole.
type TokenSet struct {
	AccessToken  secret.Value
	RefreshToken secret.Value
	IDToken      secret.Value
	TokenType    string
	ExpiresAt    time.Time
	Scopes       []string

	// Display identity, possibly empty.
	Email string
	Name  string
}

// Valid reports whether the access token can still be used at now.
func (t *TokenSet) Valid(now time.Time) bool {
	return t != nil && !t.AccessToken.IsEmpty() && t.ExpiresAt.After(now)
}

// NeedsRefresh reports whether the token expires within lead of now.
func (t *TokenSet) NeedsRefresh(now time.Time, lead time.Duration) bool {
	return !t.ExpiresAt.After(now.Add(lead))
}

// CanRefresh reports whether a refresh token is held.
func (t *TokenSet) CanRefresh() bool {
	return t != nil && !t.RefreshToken.IsEmpty()
}

// UserInfo is the subset of the userinfo response used for display.
type UserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}
