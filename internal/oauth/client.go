package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"deskauth/pkg/logging"
	"deskauth/pkg/secret"
)

// Google endpoints that x/oauth2/google does not export.
const (
	GoogleRevokeURL   = "https://oauth2.googleapis.com/revoke"
	GoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/generative-language.retriever",
}

// ClientConfig names the OAuth client and the provider endpoints.
type ClientConfig struct {
	ClientID     string
	ClientSecret secret.Value

	AuthURL     string
	TokenURL    string
	RevokeURL   string
	UserInfoURL string

	Scopes []string

	// RequestTimeout bounds each request to the provider.
	RequestTimeout time.Duration
}

// Client performs the token endpoint, userinfo and revocation calls.
// It is safe for concurrent use.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	rest       *resty.Client
	now        func() time.Time
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for all provider calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides the time source used to compute expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a Client. Empty endpoints default to Google's.
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = google.Endpoint.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = google.Endpoint.TokenURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = GoogleRevokeURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = GoogleUserInfoURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.rest = resty.NewWithClient(c.httpClient).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Accept", "application/json")

	return c
}

func (c *Client) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret.Reveal(),
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthURL,
			TokenURL:  c.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURI,
		Scopes:      c.cfg.Scopes,
	}
}

// requestContext applies the request timeout and routes x/oauth2 through
// the configured HTTP client.
func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

// AuthCodeURL builds the authorization request for an attempt. Offline
// access and forced consent are requested so the provider issues a refresh
// token.
func (c *Client) AuthCodeURL(a *Attempt) string {
	return c.oauth2Config(a.RedirectURI).AuthCodeURL(a.State,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", a.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode trades an authorization code for tokens. It is never retried:
// codes are single-use.
func (c *Client) ExchangeCode(ctx context.Context, code string, verifier secret.Value, redirectURI string) (*TokenSet, error) {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	tok, err := c.oauth2Config(redirectURI).Exchange(ctx, code, oauth2.VerifierOption(verifier.Reveal()))
	if err != nil {
		exErr := classifyExchangeError(err)
		logging.Warn("OAuth", "Code exchange failed (transient=%t, status=%d, code=%s)",
			exErr.Transient(), exErr.StatusCode, exErr.Code)
		return nil, exErr
	}

	ts := c.tokenSetFrom(tok, nil)
	if ts.Email == "" && ts.Name == "" {
		c.fillIdentity(ctx, ts)
	}

	logging.Info("OAuth", "Code exchange succeeded, token expires at %s", ts.ExpiresAt.Format(time.RFC3339))
	return ts, nil
}

// Refresh obtains a new TokenSet from previous's refresh token. A response
// without a refresh token keeps the previous one, as do missing identity
// fields.
func (c *Client) Refresh(ctx context.Context, previous *TokenSet) (*TokenSet, error) {
	if !previous.CanRefresh() {
		return nil, fmt.Errorf("%w: no refresh token held", ErrRefreshTokenInvalid)
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	src := c.oauth2Config("").TokenSource(ctx, &oauth2.Token{
		RefreshToken: previous.RefreshToken.Reveal(),
	})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			logging.Audit(logging.AuditEvent{
				Action:  "refresh_invalid",
				Outcome: "rejected",
				Detail:  re.ErrorDescription,
			})
			return nil, fmt.Errorf("%w: %s", ErrRefreshTokenInvalid, describeRetrieveError(re))
		}
		logging.Warn("OAuth", "Token refresh failed: %s", describeError(err))
		return nil, fmt.Errorf("%w: %s", ErrRefreshTransient, describeError(err))
	}

	ts := c.tokenSetFrom(tok, previous)
	logging.Info("OAuth", "Token refreshed, expires at %s", ts.ExpiresAt.Format(time.RFC3339))
	return ts, nil
}

// tokenSetFrom converts a token response. Fields the response omits are
// taken from previous when it is non-nil.
func (c *Client) tokenSetFrom(tok *oauth2.Token, previous *TokenSet) *TokenSet {
	now := c.now()
	ts := &TokenSet{
		AccessToken:  secret.New(tok.AccessToken),
		RefreshToken: secret.New(tok.RefreshToken),
		TokenType:    tok.TokenType,
		ExpiresAt:    now.Add(lifetime(tok, now)),
	}

	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		ts.IDToken = secret.New(raw)
		if claims, err := ParseIdentity(raw); err == nil {
			ts.Email = claims.Email
			ts.Name = claims.Name
		} else {
			logging.Debug("OAuth", "id_token claims unreadable: %v", err)
		}
	}

	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		ts.Scopes = strings.Fields(scope)
	}

	if previous != nil {
		if ts.RefreshToken.IsEmpty() {
			ts.RefreshToken = previous.RefreshToken
		}
		if ts.IDToken.IsEmpty() {
			ts.IDToken = previous.IDToken
		}
		if ts.Email == "" {
			ts.Email = previous.Email
		}
		if ts.Name == "" {
			ts.Name = previous.Name
		}
		if len(ts.Scopes) == 0 {
			ts.Scopes = previous.Scopes
		}
	}
	if len(ts.Scopes) == 0 {
		ts.Scopes = c.cfg.Scopes
	}

	return ts
}

// lifetime returns the token lifetime, clamped to MinTokenLifetime.
func lifetime(tok *oauth2.Token, now time.Time) time.Duration {
	var d time.Duration
	if secs, ok := expiresIn(tok); ok {
		d = time.Duration(secs) * time.Second
	} else if !tok.Expiry.IsZero() {
		d = tok.Expiry.Sub(now)
	}
	if d < MinTokenLifetime {
		return MinTokenLifetime
	}
	return d
}

// expiresIn returns the wire expires_in value, if the response had one.
func expiresIn(tok *oauth2.Token) (int64, bool) {
	if tok.ExpiresIn != 0 {
		return tok.ExpiresIn, true
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// fillIdentity looks up display identity on the userinfo endpoint. Failure
// only costs the display name.
func (c *Client) fillIdentity(ctx context.Context, ts *TokenSet) {
	info, err := c.UserInfo(ctx, ts.AccessToken)
	if err != nil {
		logging.Debug("OAuth", "userinfo lookup failed: %v", err)
		return
	}
	ts.Email = info.Email
	ts.Name = info.Name
}

func classifyExchangeError(err error) *ExchangeError {
	exErr := &ExchangeError{Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		exErr.Code = re.ErrorCode
		exErr.Description = re.ErrorDescription
		// The raw error embeds the response body; keep only the parsed fields.
		exErr.Err = nil
		if re.Response != nil {
			exErr.StatusCode = re.Response.StatusCode
			exErr.transient = re.Response.StatusCode >= http.StatusInternalServerError
		}
		return exErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		exErr.transient = true
	}
	return exErr
}

func describeRetrieveError(re *oauth2.RetrieveError) string {
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	switch {
	case re.ErrorCode != "":
		return fmt.Sprintf("%s (HTTP %d)", re.ErrorCode, status)
	default:
		return fmt.Sprintf("HTTP %d", status)
	}
}

// describeError renders err without any response body.
func describeError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return describeRetrieveError(re)
	}
	return err.Error()
}
