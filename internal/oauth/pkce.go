package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"deskauth/pkg/secret"
)

const (
	// pkceVerifierBytes is the number of random bytes for the code verifier.
	// 32 bytes encode to 43 base64url characters, the RFC 7636 minimum.
	pkceVerifierBytes = 32

	// stateBytes is the number of random bytes for the state parameter.
	stateBytes = 32
)

// Generator produces sign-in attempts from a random source.
type Generator struct {
	rand io.Reader
	now  func() time.Time
}

// NewGenerator returns a Generator reading from r.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rand: r, now: time.Now}
}

var defaultGenerator = NewGenerator(rand.Reader)

// BeginAttempt creates a new attempt from crypto/rand.
func BeginAttempt(redirectURI string) (*Attempt, error) {
	return defaultGenerator.BeginAttempt(redirectURI)
}

// BeginAttempt creates a new attempt with a fresh verifier and state.
// A failing random source is reported as ErrEntropyUnavailable; there is no
// fallback.
func (g *Generator) BeginAttempt(redirectURI string) (*Attempt, error) {
	verifier, err := g.randomString(pkceVerifierBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}

	state, err := g.randomString(stateBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attempt id: %w: %w", ErrEntropyUnavailable, err)
	}

	return &Attempt{
		ID:            id.String(),
		State:         state,
		CodeVerifier:  secret.New(verifier),
		CodeChallenge: S256Challenge(verifier),
		CreatedAt:     g.now(),
		RedirectURI:   redirectURI,
	}, nil
}

func (g *Generator) randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(g.rand, buf); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// S256Challenge returns base64url(SHA-256(verifier)) without padding.
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
