package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskauth/internal/config"
)

func runConfigInitCmd(t *testing.T, path string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvClientID, "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"config", "init", "--config", path, "--log-level", "error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configInitClientID = ""
		configInitIssuer = ""
		configInitWatchStorage = false
		configInitForce = false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskauth", "config.yaml")

	out, err := runConfigInitCmd(t, path, "--client-id", "test-client.apps.googleusercontent.com", "--watch-storage")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test-client.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, config.DefaultRedirectPort, cfg.RedirectPort)
	assert.Equal(t, config.DefaultScopes, cfg.Scopes)
	assert.True(t, cfg.WatchStorage)
	assert.NoError(t, cfg.Validate())
}

func TestConfigInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clientId: mine\n"), 0600))

	_, err := runConfigInitCmd(t, path, "--client-id", "other.apps.googleusercontent.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "clientId: mine\n", string(data))
}

func TestConfigInit_Force(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clientId: mine\n"), 0600))

	_, err := runConfigInitCmd(t, path, "--client-id", "other.apps.googleusercontent.com", "--force")
	require.NoError(t, err)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "other.apps.googleusercontent.com", cfg.ClientID)
}

func TestConfigInit_RejectsPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := runConfigInitCmd(t, path, "--client-id", "YOUR_CLIENT_ID_HERE")
	require.Error(t, err)
	assert.Equal(t, ExitCodeEnvironment, getExitCode(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
