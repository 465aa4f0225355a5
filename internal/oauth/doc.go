// Package oauth implements the client side of the OAuth 2.0 authorization
// code flow for a native public client.
//
// It covers the pieces that talk to the provider or produce protocol
// material:
//
//   - PKCE attempts (verifier, S256 challenge and state) from crypto/rand
//   - the authorization URL, with offline access requested
//   - the code-for-token exchange and refresh over golang.org/x/oauth2
//   - display identity from the id_token or the userinfo endpoint
//   - best-effort RFC 7009 revocation
//   - optional OIDC discovery of the provider endpoints
//
// Token values are held in secret.Value and never appear in logs or errors.
package oauth
