package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskauth/pkg/secret"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, test.level.String())
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.SlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogLevel(42).SlogLevel())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestInitForCLI_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelWarn, &buf)

	Info("Session", "should not appear")
	Warn("Session", "refresh retry in %s", "2s")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "refresh retry in 2s")
	assert.Contains(t, out, "subsystem=Session")
}

func TestError_IncludesError(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	Error("OAuth", errors.New("boom"), "exchange failed")

	assert.Contains(t, buf.String(), "exchange failed")
	assert.Contains(t, buf.String(), "error=boom")
}

func TestCredentialKeysAreScrubbed(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	Logger().Info("leak attempt",
		"access_token", "AT-raw",
		"refresh_token", "RT-raw",
		"code", "abc123",
		"wrapped", secret.New("also-raw"),
	)

	out := buf.String()
	for _, raw := range []string{"AT-raw", "RT-raw", "abc123", "also-raw"} {
		assert.NotContains(t, out, raw)
	}
}

func TestAudit(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Audit(AuditEvent{Action: "token_cleared", Outcome: "success", AttemptID: "a-1"})

	out := buf.String()
	assert.Contains(t, out, "[AUDIT] token_cleared")
	assert.Contains(t, out, "outcome=success")
	assert.Contains(t, out, "attempt_id=a-1")
}
