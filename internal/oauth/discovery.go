package oauth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"

	"deskauth/pkg/logging"
)

// Endpoints are the provider URLs a Client needs.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	RevokeURL   string
	UserInfoURL string
}

// Discover reads the OpenID Connect discovery document of issuer.
func (c *Client) Discover(ctx context.Context, issuer string) (*Endpoints, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover issuer %s: %w", issuer, err)
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	ep := provider.Endpoint()
	endpoints := &Endpoints{
		AuthURL:     ep.AuthURL,
		TokenURL:    ep.TokenURL,
		RevokeURL:   extra.RevocationEndpoint,
		UserInfoURL: provider.UserInfoEndpoint(),
	}

	logging.Info("OAuth", "Discovered endpoints for issuer %s", issuer)
	return endpoints, nil
}

// ApplyEndpoints replaces the client's endpoints with the non-empty fields
// of ep. Call it before the client is shared.
func (c *Client) ApplyEndpoints(ep *Endpoints) {
	if ep.AuthURL != "" {
		c.cfg.AuthURL = ep.AuthURL
	}
	if ep.TokenURL != "" {
		c.cfg.TokenURL = ep.TokenURL
	}
	if ep.RevokeURL != "" {
		c.cfg.RevokeURL = ep.RevokeURL
	}
	if ep.UserInfoURL != "" {
		c.cfg.UserInfoURL = ep.UserInfoURL
	}
}
