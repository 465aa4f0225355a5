package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	userConfigDir  = ".config/deskauth"
	configFileName = "config.yaml"
	tokenSubdir    = "tokens"

	DefaultAppID           = "deskauth"
	DefaultRedirectPort    = 8080
	DefaultCallbackTimeout = 5 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second
	DefaultRefreshLead     = 5 * time.Minute
)

// DefaultScopes requests identity plus the Generative Language API.
var DefaultScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/generative-language.retriever",
}

// DefaultConfigDir returns ~/.config/deskauth.
func DefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// DefaultConfigPath returns ~/.config/deskauth/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// GetDefaultConfig returns the configuration used when no file exists.
// Endpoints are left empty and resolve to Google's.
func GetDefaultConfig() Config {
	storageDir := ""
	if dir, err := DefaultConfigDir(); err == nil {
		storageDir = filepath.Join(dir, tokenSubdir)
	}

	return Config{
		AppID:           DefaultAppID,
		RedirectPort:    DefaultRedirectPort,
		Scopes:          append([]string(nil), DefaultScopes...),
		CallbackTimeout: DefaultCallbackTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		RefreshLead:     DefaultRefreshLead,
		StorageDir:      storageDir,
	}
}
