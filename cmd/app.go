package cmd

import (
	"context"
	"fmt"
	"io"

	"deskauth/internal/browser"
	"deskauth/internal/config"
	"deskauth/internal/oauth"
	"deskauth/internal/session"
	"deskauth/internal/tokenstore"
	"deskauth/pkg/auth"
	"deskauth/pkg/logging"
	"deskauth/pkg/secret"
)

// app is the wired session core for one command invocation.
type app struct {
	cfg    config.Config
	client *oauth.Client
	store  *tokenstore.Store
	ctrl   *session.Controller

	stopWatch context.CancelFunc
}

// appOptions tune newApp per command.
type appOptions struct {
	// opener shows the authorization URL; defaults to the system browser
	// with the URL printed as a fallback.
	opener browser.Opener
	// notifier receives session transitions.
	notifier session.Notifier
	// out receives the printed authorization URL.
	out io.Writer
	// watch follows changes other processes make to the stored session,
	// as the watchStorage setting does.
	watch bool
}

// loadValidConfig loads and validates the configuration file.
func loadValidConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return cfg, nil
}

// newApp wires configuration, token client, store and controller, and
// restores the persisted session.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadValidConfig()
	if err != nil {
		return nil, err
	}

	client := oauth.NewClient(oauth.ClientConfig{
		ClientID:       cfg.ClientID,
		ClientSecret:   secret.New(cfg.ClientSecret),
		AuthURL:        cfg.AuthURL,
		TokenURL:       cfg.TokenURL,
		RevokeURL:      cfg.RevokeURL,
		UserInfoURL:    cfg.UserInfoURL,
		Scopes:         cfg.Scopes,
		RequestTimeout: cfg.RequestTimeout,
	})

	if cfg.Issuer != "" {
		endpoints, err := client.Discover(ctx, cfg.Issuer)
		if err != nil {
			return nil, &AuthFailedError{Class: auth.ClassTransient, Reason: err}
		}
		// Explicitly configured endpoints win over discovery.
		if cfg.AuthURL != "" {
			endpoints.AuthURL = ""
		}
		if cfg.TokenURL != "" {
			endpoints.TokenURL = ""
		}
		if cfg.RevokeURL != "" {
			endpoints.RevokeURL = ""
		}
		if cfg.UserInfoURL != "" {
			endpoints.UserInfoURL = ""
		}
		client.ApplyEndpoints(endpoints)
	}

	var key []byte
	if cfg.StorageKey != "" {
		key = []byte(cfg.StorageKey)
	}
	store, err := tokenstore.New(tokenstore.Config{
		Dir:     cfg.StorageDir,
		AppID:   cfg.AppID,
		Key:     key,
		KeyFile: cfg.KeyFile,
	})
	if err != nil {
		return nil, &AuthFailedError{Class: auth.ClassEnvironment, Reason: err}
	}

	opener := opts.opener
	if opener == nil {
		out := opts.out
		if out == nil {
			out = io.Discard
		}
		opener = browser.Fallback{Primary: browser.System{}, Secondary: browser.Printer{W: out}}
	}

	ctrl, err := session.New(session.Config{
		Client:          client,
		Store:           store,
		Notifier:        opts.notifier,
		Opener:          opener,
		RedirectPort:    cfg.RedirectPort,
		CallbackTimeout: cfg.CallbackTimeout,
		RefreshLead:     cfg.RefreshLead,
	})
	if err != nil {
		return nil, err
	}

	if err := ctrl.Start(ctx); err != nil {
		ctrl.Close()
		return nil, &AuthFailedError{Class: session.Classify(err), Reason: err}
	}

	a := &app{cfg: cfg, client: client, store: store, ctrl: ctrl}
	if opts.watch || cfg.WatchStorage {
		if err := a.watchStore(ctx); err != nil {
			ctrl.Close()
			return nil, authFailure(err)
		}
	}

	logging.Debug("CLI", "Session core ready, state %s", ctrl.State())
	return a, nil
}

// watchStore reloads the session whenever another process changes the
// stored record, until ctx ends or the app is closed.
func (a *app) watchStore(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	err := a.store.Watch(watchCtx, func(change tokenstore.Change) {
		logging.Info("CLI", "Stored session %s by another process", change)
		a.ctrl.ReloadFromStore()
	})
	if err != nil {
		cancel()
		return err
	}
	a.stopWatch = cancel
	return nil
}

// Close stops watching the store and releases the controller.
func (a *app) Close() {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	_ = a.ctrl.Close()
}

// authFailure wraps err for exit code mapping.
func authFailure(err error) error {
	if err == nil {
		return nil
	}
	return &AuthFailedError{Class: session.Classify(err), Reason: err}
}
