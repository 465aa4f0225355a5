package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, ValidationError{Field: field, Message: message})
}

// placeholderClientIDs are values shipped in sample configs.
var placeholderClientIDs = []string{"YOUR_CLIENT_ID_HERE", "YOUR_CLIENT_ID", "CHANGEME"}

// Validate checks the configuration. It returns ValidationErrors listing
// every problem, or nil.
func (c Config) Validate() error {
	var errs ValidationErrors

	switch {
	case c.AppID == "":
		errs.Add("appId", "is required")
	case c.AppID != filepath.Base(c.AppID) || strings.HasPrefix(c.AppID, "."):
		errs.Add("appId", "must be a plain file name")
	}

	clientID := strings.TrimSpace(c.ClientID)
	if clientID == "" {
		errs.Add("clientId", fmt.Sprintf("is required (set it in the config file or %s)", EnvClientID))
	} else {
		for _, p := range placeholderClientIDs {
			if strings.EqualFold(clientID, p) {
				errs.Add("clientId", "is still the placeholder value")
			}
		}
	}

	if c.RedirectPort < 1 || c.RedirectPort > 65535 {
		errs.Add("redirectPort", fmt.Sprintf("must be between 1 and 65535, got %d", c.RedirectPort))
	}

	endpoints := []struct{ field, raw string }{
		{"issuer", c.Issuer},
		{"authUrl", c.AuthURL},
		{"tokenUrl", c.TokenURL},
		{"revokeUrl", c.RevokeURL},
		{"userinfoUrl", c.UserInfoURL},
	}
	for _, ep := range endpoints {
		if ep.raw == "" {
			continue
		}
		if msg := checkEndpoint(ep.raw); msg != "" {
			errs.Add(ep.field, msg)
		}
	}

	if c.CallbackTimeout <= 0 {
		errs.Add("callbackTimeout", "must be positive")
	}
	if c.RequestTimeout <= 0 {
		errs.Add("requestTimeout", "must be positive")
	}
	if c.RefreshLead < 0 {
		errs.Add("refreshLead", "must not be negative")
	}
	if c.StorageDir == "" {
		errs.Add("storageDir", "is required")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// checkEndpoint requires https, except for loopback hosts.
func checkEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("%q is not an absolute URL", raw)
	}
	switch u.Scheme {
	case "https":
		return ""
	case "http":
		if isLoopback(u.Hostname()) {
			return ""
		}
		return fmt.Sprintf("%q must use https", raw)
	default:
		return fmt.Sprintf("%q has unsupported scheme %q", raw, u.Scheme)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
