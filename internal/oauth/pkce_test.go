package oauth

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestBeginAttempt(t *testing.T) {
	a, err := BeginAttempt("http://localhost:8080/")
	require.NoError(t, err)

	assert.Len(t, a.State, 43)
	assert.Len(t, a.CodeVerifier.Reveal(), 43)
	assert.Equal(t, S256Challenge(a.CodeVerifier.Reveal()), a.CodeChallenge)
	assert.Equal(t, "http://localhost:8080/", a.RedirectURI)
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())
}

func TestBeginAttempt_Unique(t *testing.T) {
	verifiers := make(map[string]bool)
	states := make(map[string]bool)

	for i := 0; i < 200; i++ {
		a, err := BeginAttempt("http://localhost:8080/")
		require.NoError(t, err)

		assert.False(t, verifiers[a.CodeVerifier.Reveal()], "verifier repeated")
		assert.False(t, states[a.State], "state repeated")
		assert.NotEqual(t, a.State, a.CodeVerifier.Reveal())
		verifiers[a.CodeVerifier.Reveal()] = true
		states[a.State] = true
	}
}

func TestBeginAttempt_VerifierCharset(t *testing.T) {
	a, err := BeginAttempt("http://localhost:8080/")
	require.NoError(t, err)

	for _, r := range a.CodeVerifier.Reveal() {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
		assert.True(t, ok, "unexpected character %q", r)
	}
}

func TestS256Challenge_MatchesOAuth2(t *testing.T) {
	verifier := oauth2.GenerateVerifier()
	assert.Equal(t, oauth2.S256ChallengeFromVerifier(verifier), S256Challenge(verifier))
}

func TestS256Challenge_RFC7636Vector(t *testing.T) {
	// Appendix B of RFC 7636.
	assert.Equal(t,
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		S256Challenge("dBjftJeZ4CVP-mB92K1uEhbW04jWqnMn0pyNx7Q0xjw"))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy pool closed")
}

func TestGenerator_EntropyFailure(t *testing.T) {
	_, err := NewGenerator(failingReader{}).BeginAttempt("http://localhost:8080/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntropyUnavailable)
}

func TestGenerator_ShortRead(t *testing.T) {
	// 40 bytes cover the verifier but not the state.
	_, err := NewGenerator(bytes.NewReader(make([]byte, 40))).BeginAttempt("http://localhost:8080/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntropyUnavailable)
}

func TestGenerator_IndependentValues(t *testing.T) {
	a, err := NewGenerator(rand.Reader).BeginAttempt("http://localhost:9999/")
	require.NoError(t, err)
	assert.NotEqual(t, a.State, a.CodeVerifier.Reveal())
}
