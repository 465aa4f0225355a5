package config

import "time"

// Config is the deskauth configuration.
type Config struct {
	// AppID names the persisted record and key file.
	AppID string `yaml:"appId"`

	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// RedirectPort is the loopback port registered with the provider.
	RedirectPort int `yaml:"redirectPort"`

	// Issuer enables OIDC discovery of the endpoints below when set.
	Issuer string `yaml:"issuer,omitempty"`

	AuthURL     string `yaml:"authUrl,omitempty"`
	TokenURL    string `yaml:"tokenUrl,omitempty"`
	RevokeURL   string `yaml:"revokeUrl,omitempty"`
	UserInfoURL string `yaml:"userinfoUrl,omitempty"`

	Scopes []string `yaml:"scopes,omitempty"`

	CallbackTimeout time.Duration `yaml:"callbackTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	RefreshLead     time.Duration `yaml:"refreshLead"`

	StorageDir string `yaml:"storageDir,omitempty"`
	KeyFile    string `yaml:"keyFile,omitempty"`

	// WatchStorage reloads the session when another process changes it.
	WatchStorage bool `yaml:"watchStorage"`

	// StorageKey is only ever read from the environment.
	StorageKey string `yaml:"-"`
}
