package oauth

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"deskauth/pkg/logging"
	"deskauth/pkg/secret"
)

// UserInfo fetches the signed-in user's profile from the userinfo endpoint.
func (c *Client) UserInfo(ctx context.Context, accessToken secret.Value) (*UserInfo, error) {
	info := &UserInfo{}
	res, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(accessToken.Reveal()).
		SetResult(info).
		Get(c.cfg.UserInfoURL)
	if err := handleError("userinfo", res, err); err != nil {
		return nil, err
	}
	return info, nil
}

// Revoke asks the provider to invalidate token (RFC 7009). Callers treat
// failure as non-fatal; a revoked or unknown token is reported as success by
// compliant providers.
func (c *Client) Revoke(ctx context.Context, token secret.Value) error {
	if token.IsEmpty() {
		return nil
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	res, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{"token": token.Reveal()}).
		Post(c.cfg.RevokeURL)
	if err := handleError("revoke", res, err); err != nil {
		return err
	}

	logging.Debug("OAuth", "Token revoked")
	return nil
}

func handleError(op string, res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	if res.IsError() {
		return fmt.Errorf("%s request failed: HTTP %d", op, res.StatusCode())
	}
	return nil
}
