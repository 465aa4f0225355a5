package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"deskauth/pkg/logging"
)

// Environment variables that override the file.
const (
	EnvClientID     = "GOOGLE_OAUTH_CLIENT_ID"
	EnvClientSecret = "GOOGLE_OAUTH_CLIENT_SECRET"
	EnvRedirectPort = "DESKAUTH_REDIRECT_PORT"
	EnvStorageKey   = "DESKAUTH_STORAGE_KEY"
)

// LoadConfig reads the file at path over the defaults and applies the
// environment. A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.LookupEnv)
}

func loadConfig(path string, lookupEnv func(string) (string, bool)) (Config, error) {
	config := GetDefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("Config", "No config file found at %s, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		logging.Info("Config", "Loaded configuration from %s", path)
	}

	if err := applyEnv(&config, lookupEnv); err != nil {
		return Config{}, err
	}
	return config, nil
}

func applyEnv(config *Config, lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv(EnvClientID); ok && v != "" {
		config.ClientID = v
	}
	if v, ok := lookupEnv(EnvClientSecret); ok && v != "" {
		config.ClientSecret = v
	}
	if v, ok := lookupEnv(EnvRedirectPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvRedirectPort, v, err)
		}
		config.RedirectPort = port
	}
	if v, ok := lookupEnv(EnvStorageKey); ok && v != "" {
		config.StorageKey = v
	}
	return nil
}

// Save writes config to path as YAML, creating the directory. The client
// secret and storage key are not written.
func Save(path string, config Config) error {
	config.ClientSecret = ""
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	logging.Info("Config", "Saved configuration to %s", path)
	return nil
}
