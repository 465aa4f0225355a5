// Package config provides configuration management for deskauth.
//
// Configuration is read from a single YAML file, by default
// ~/.config/deskauth/config.yaml. A missing file is not an error: the
// defaults target Google's OAuth endpoints and leave only the client id to
// be supplied, typically through the environment.
//
// # Environment
//
// The following variables override the file:
//   - GOOGLE_OAUTH_CLIENT_ID
//   - GOOGLE_OAUTH_CLIENT_SECRET
//   - DESKAUTH_REDIRECT_PORT
//   - DESKAUTH_STORAGE_KEY (raw key material for the token record)
//
// # Example
//
//	appId: deskauth
//	clientId: 1234.apps.googleusercontent.com
//	redirectPort: 8080
//	callbackTimeout: 5m
//	refreshLead: 5m
//	watchStorage: true
package config
