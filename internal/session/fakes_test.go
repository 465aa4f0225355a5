package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deskauth/internal/browser"
	"deskauth/internal/callback"
	"deskauth/internal/oauth"
	"deskauth/internal/tokenstore"
	"deskauth/pkg/auth"
	"deskauth/pkg/secret"
)

// fakeClient is a scripted TokenClient.
type fakeClient struct {
	mu       sync.Mutex
	exchange func(code string, verifier secret.Value, redirectURI string) (*oauth.TokenSet, error)
	refresh  func(previous *oauth.TokenSet) (*oauth.TokenSet, error)
	revoked  []string

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
}

func (f *fakeClient) AuthCodeURL(a *oauth.Attempt) string {
	q := url.Values{}
	q.Set("state", a.State)
	q.Set("redirect_uri", a.RedirectURI)
	q.Set("code_challenge", a.CodeChallenge)
	return "https://provider.test/auth?" + q.Encode()
}

func (f *fakeClient) ExchangeCode(_ context.Context, code string, verifier secret.Value, redirectURI string) (*oauth.TokenSet, error) {
	f.exchangeCalls.Add(1)
	f.mu.Lock()
	fn := f.exchange
	f.mu.Unlock()
	if fn == nil {
		return tokenSet("AT1", "RT1", time.Hour), nil
	}
	return fn(code, verifier, redirectURI)
}

func (f *fakeClient) Refresh(_ context.Context, previous *oauth.TokenSet) (*oauth.TokenSet, error) {
	f.refreshCalls.Add(1)
	f.mu.Lock()
	fn := f.refresh
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("%w: no refresh scripted", oauth.ErrRefreshTransient)
	}
	return fn(previous)
}

func (f *fakeClient) Revoke(_ context.Context, token secret.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token.Reveal())
	return nil
}

func (f *fakeClient) setRefresh(fn func(previous *oauth.TokenSet) (*oauth.TokenSet, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh = fn
}

func (f *fakeClient) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

// memStore keeps the TokenSet in memory.
type memStore struct {
	mu      sync.Mutex
	ts      *oauth.TokenSet
	loadErr error
	saveErr error
	saves   int
	clears  int
}

func (m *memStore) Save(ts *oauth.TokenSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ts = ts
	return nil
}

func (m *memStore) Load() (*oauth.TokenSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.ts == nil {
		return nil, tokenstore.ErrNotFound
	}
	return m.ts, nil
}

func (m *memStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ts = nil
	m.clears++
	return nil
}

func (m *memStore) current() *oauth.TokenSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ts
}

// recorder collects every delivered status.
type recorder struct {
	mu       sync.Mutex
	statuses []auth.Status
}

func (r *recorder) Notify(st auth.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *recorder) all() []auth.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.Status(nil), r.statuses...)
}

func (r *recorder) states() []string {
	var out []string
	for _, st := range r.all() {
		out = append(out, st.State)
	}
	return out
}

// redirectOpener plays the browser: it follows the authorization URL back to
// the loopback listener with the given code and state override.
type redirectOpener struct {
	code  string
	state string // empty echoes the request's state
	query url.Values

	opened atomic.Int32
}

func (o *redirectOpener) Open(authURL string) error {
	o.opened.Add(1)
	u, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	q := u.Query()

	redirect := url.Values{}
	for k, v := range o.query {
		redirect[k] = v
	}
	if o.code != "" {
		redirect.Set("code", o.code)
	}
	state := o.state
	if state == "" {
		state = q.Get("state")
	}
	redirect.Set("state", state)

	target := q.Get("redirect_uri") + "?" + redirect.Encode()
	go func() {
		// A refused connection means the listener was already closed.
		if resp, err := http.Get(target); err == nil {
			resp.Body.Close()
		}
	}()
	return nil
}

// idleOpener opens nothing, leaving the attempt waiting.
func idleOpener(opened *atomic.Int32) browser.Opener {
	return browser.OpenerFunc(func(string) error {
		opened.Add(1)
		return nil
	})
}

func tokenSet(access, refresh string, lifetime time.Duration) *oauth.TokenSet {
	return &oauth.TokenSet{
		AccessToken:  secret.New(access),
		RefreshToken: secret.New(refresh),
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(lifetime),
		Email:        "ada@example.com",
		Name:         "Ada",
	}
}

type testEnv struct {
	ctrl   *Controller
	client *fakeClient
	store  *memStore
	rec    *recorder
}

func newTestEnv(t *testing.T, opener browser.Opener, mutate ...func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{
		client: &fakeClient{},
		store:  &memStore{},
		rec:    &recorder{},
	}
	cfg := Config{
		Client:          env.client,
		Store:           env.store,
		Notifier:        env.rec,
		Opener:          opener,
		CallbackTimeout: 5 * time.Second,
		InitialBackoff:  time.Hour,
		MaxBackoff:      time.Hour,
		Bind: func(int) (Listener, error) {
			return callback.Bind(0)
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	ctrl, err := New(cfg)
	require.NoError(t, err)
	env.ctrl = ctrl
	t.Cleanup(func() { _ = ctrl.Close() })
	return env
}

// drain closes the controller so every queued status has been delivered.
func (e *testEnv) drain(t *testing.T) []auth.Status {
	t.Helper()
	require.NoError(t, e.ctrl.Close())
	return e.rec.all()
}

func authenticatedCount(statuses []auth.Status) int {
	n := 0
	for _, st := range statuses {
		if st.IsAuthenticated {
			n++
		}
	}
	return n
}
