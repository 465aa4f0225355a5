package oauth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentity(t *testing.T) {
	raw := testIDToken(t, jwt.MapClaims{"sub": "1234", "email": "ada@example.com", "name": "Ada Lovelace"})

	claims, err := ParseIdentity(raw)
	require.NoError(t, err)
	assert.Equal(t, "1234", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "Ada Lovelace", claims.Name)
}

func TestParseIdentity_MissingClaims(t *testing.T) {
	claims, err := ParseIdentity(testIDToken(t, jwt.MapClaims{"sub": "1234"}))
	require.NoError(t, err)
	assert.Empty(t, claims.Email)
	assert.Empty(t, claims.Name)
}

func TestParseIdentity_Malformed(t *testing.T) {
	_, err := ParseIdentity("not-a-jwt")
	assert.Error(t, err)
}
