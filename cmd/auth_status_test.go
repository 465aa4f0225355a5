package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskauth/internal/oauth"
	"deskauth/pkg/auth"
	"deskauth/pkg/secret"
)

func TestFormatSessionState(t *testing.T) {
	tests := []struct {
		name     string
		status   auth.Status
		expected string
	}{
		{"signed in", auth.Status{State: "signed_in"}, text.FgGreen.Sprint("Signed in")},
		{"signed in with pending refresh", auth.Status{State: "signed_in", Error: auth.NewStatusError(auth.ClassTransient, "HTTP 503")}, text.FgYellow.Sprint("Signed in (refresh pending)")},
		{"signing in", auth.Status{State: "signing_in"}, text.FgCyan.Sprint("Signing in")},
		{"signed out", auth.Status{State: "signed_out"}, text.FgYellow.Sprint("Not signed in")},
		{"error", auth.Status{State: "error"}, text.FgRed.Sprint("Error")},
		{"unknown", auth.Status{State: "initializing"}, text.FgHiBlack.Sprint("initializing")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatSessionState(tt.status))
		})
	}
}

func TestFormatExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, strings.HasPrefix(formatExpiry(now.Add(59*time.Minute), now), "in 59m"))
	assert.True(t, strings.HasPrefix(formatExpiry(now.Add(90*time.Minute), now), "in 1h30m"))
	assert.True(t, strings.HasPrefix(formatExpiry(now.Add(20*time.Second), now), "in 20s"))
	assert.Contains(t, formatExpiry(now.Add(-3*time.Minute), now), "3m ago")
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada <ada@example.com>", displayName(auth.Status{Email: auth.StringPtr("ada@example.com"), Name: auth.StringPtr("Ada")}))
	assert.Equal(t, "ada@example.com", displayName(auth.Status{Email: auth.StringPtr("ada@example.com")}))
	assert.Equal(t, "Ada", displayName(auth.Status{Name: auth.StringPtr("Ada")}))
	assert.Equal(t, "(unknown account)", displayName(auth.Status{}))
}

func TestRenderStatusTable_NeverShowsTokens(t *testing.T) {
	now := time.Now()
	ts := &oauth.TokenSet{
		AccessToken:  secret.New("AT-secret-value"),
		RefreshToken: secret.New("RT-secret-value"),
		ExpiresAt:    now.Add(time.Hour),
	}
	st := auth.Status{IsAuthenticated: true, State: "signed_in", Email: auth.StringPtr("ada@example.com")}

	var buf bytes.Buffer
	renderStatusTable(&buf, st, ts, "/tmp/deskauth.tokens", now)

	out := buf.String()
	assert.Contains(t, out, "ada@example.com")
	assert.Contains(t, out, "/tmp/deskauth.tokens")
	assert.Contains(t, out, "Available")
	assert.NotContains(t, out, "AT-secret-value")
	assert.NotContains(t, out, "RT-secret-value")
}

func TestStatusRows_Error(t *testing.T) {
	st := auth.Status{
		State: "signed_out",
		Error: auth.NewStatusError(auth.ClassSessionInvalidated, "refresh token is no longer valid"),
	}
	rows := statusRows(st, nil, "/tmp/x", time.Now())

	var labels []string
	for _, r := range rows {
		labels = append(labels, r[0].(string))
	}
	assert.Equal(t, []string{"Status", "Error", "Hint", "Storage"}, labels)
}

func TestWriteStatusJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStatusJSON(&buf, auth.Status{
		IsAuthenticated: true,
		State:           "signed_in",
		Email:           auth.StringPtr("ada@example.com"),
	}))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, true, decoded["is_authenticated"])
	assert.Equal(t, "signed_in", decoded["state"])
	assert.Equal(t, "ada@example.com", decoded["email"])
	assert.Nil(t, decoded["name"])
}

func TestAuthStatusCmdProperties(t *testing.T) {
	assert.Equal(t, "status", authStatusCmd.Use)
	assert.NotEmpty(t, authStatusCmd.Short)
	assert.NotNil(t, authStatusCmd.RunE)
	assert.NotNil(t, authStatusCmd.Flags().Lookup("json"))
}
