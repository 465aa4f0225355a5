package oauth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims holds the display claims read from an id_token.
type IdentityClaims struct {
	Subject string
	Email   string
	Name    string
}

// ParseIdentity extracts display claims from a JWT id_token without
// verifying its signature. The result is for display only and must never
// be used for an authorization decision.
func ParseIdentity(raw string) (*IdentityClaims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse id_token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected id_token claims type %T", token.Claims)
	}

	out := &IdentityClaims{}
	out.Subject, _ = claims.GetSubject()
	out.Email, _ = claims["email"].(string)
	out.Name, _ = claims["name"].(string)
	return out, nil
}
