package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal token, userinfo and revocation endpoint.
type fakeProvider struct {
	server *httptest.Server

	mu         sync.Mutex
	tokenForms []url.Values
	revoked    []string

	tokenCalls atomic.Int32

	// tokenHandler answers the token endpoint; defaults to a fixed success.
	tokenHandler func(w http.ResponseWriter, form url.Values)
	userInfo     map[string]string
	revokeStatus int
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{revokeStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.tokenCalls.Add(1)
		p.mu.Lock()
		p.tokenForms = append(p.tokenForms, r.PostForm)
		h := p.tokenHandler
		p.mu.Unlock()
		if h == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  "AT1",
				"refresh_token": "RT1",
				"token_type":    "Bearer",
				"expires_in":    3600,
			})
			return
		}
		h(w, r.PostForm)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if p.userInfo == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, p.userInfo)
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.mu.Lock()
		p.revoked = append(p.revoked, r.PostForm.Get("token"))
		p.mu.Unlock()
		w.WriteHeader(p.revokeStatus)
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) setTokenHandler(h func(w http.ResponseWriter, form url.Values)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenHandler = h
}

func (p *fakeProvider) lastForm() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tokenForms) == 0 {
		return nil
	}
	return p.tokenForms[len(p.tokenForms)-1]
}

func (p *fakeProvider) config() ClientConfig {
	return ClientConfig{
		ClientID:    "desk-client",
		AuthURL:     p.server.URL + "/auth",
		TokenURL:    p.server.URL + "/token",
		RevokeURL:   p.server.URL + "/revoke",
		UserInfoURL: p.server.URL + "/userinfo",
		Scopes:      []string{"openid", "email"},
	}
}

func (p *fakeProvider) client(opts ...ClientOption) *Client {
	return NewClient(p.config(), append([]ClientOption{WithHTTPClient(p.server.Client())}, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func testIDToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}
