package incognito_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	oauth2lib "golang.org/x/oauth2"

	ic "github.com/panyam/incognito"
	"github.com/panyam/incognito/oauth2"
	"github.com/panyam/incognito/stores/fs"
)

var (
	fastHasher = ic.BcryptHasher{Cost: bcrypt.MinCost}
	testKey    = []byte("0123456789abcdef0123456789abcdef")
)

func newStore(t *testing.T) ic.CredentialStore {
	t.Helper()
	return fs.NewFSCredentialStore(t.TempDir())
}

func newLocalAuth(store ic.CredentialStore) *ic.LocalAuth {
	return &ic.LocalAuth{Store: store, Hasher: fastHasher}
}

type testServer struct {
	App    *ic.App
	Store  ic.CredentialStore
	Server *httptest.Server
}

func newTestServer(t *testing.T, google *oauth2.GoogleOAuth2) *testServer {
	t.Helper()
	return newTestServerWith(t, ic.Options{Store: newStore(t), Google: google})
}

// newTestServerWith fills in the hasher and state key and serves the app.
func newTestServerWith(t *testing.T, opts ic.Options) *testServer {
	t.Helper()
	store := opts.Store
	opts.Hasher = fastHasher
	opts.StateSigningKey = testKey
	app, err := ic.NewApp(opts)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(srv.Close)
	return &testServer{App: app, Store: store, Server: srv}
}

// newBrowser returns a client that keeps cookies and does not follow redirects.
func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (s *testServer) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(s.Server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (s *testServer) post(t *testing.T, c *http.Client, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := c.PostForm(s.Server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func expectRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("%s %s: expected 302, got %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode)
	}
	if got := resp.Header.Get("Location"); got != location {
		t.Fatalf("%s %s: expected redirect to %s, got %s", resp.Request.Method, resp.Request.URL.Path, location, got)
	}
}

// fakeGoogle serves the token and userinfo endpoints of an authorization server.
type fakeGoogle struct {
	server     *httptest.Server
	subject    atomic.Value
	tokenCalls atomic.Int32
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{}
	g.subject.Store("google-12345")
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		g.tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mock_access_token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"sub": g.subject.Load(), "name": "Test User"})
	})
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func (g *fakeGoogle) client() *oauth2.GoogleOAuth2 {
	c := oauth2.NewGoogleOAuth2("test-client-id", "test-client-secret", "http://localhost:3000/auth/google/secrets")
	c.SetEndpoint(oauth2lib.Endpoint{
		AuthURL:   g.server.URL + "/auth",
		TokenURL:  g.server.URL + "/token",
		AuthStyle: oauth2lib.AuthStyleInParams,
	})
	c.UserInfoURL = g.server.URL + "/userinfo"
	return c
}

// startGoogleLogin follows /auth/google and returns the state handed to the provider.
func (s *testServer) startGoogleLogin(t *testing.T, c *http.Client) string {
	t.Helper()
	resp, _ := s.get(t, c, "/auth/google")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected redirect to provider, got %d", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(loc.Path, "/auth") {
		t.Fatalf("unexpected provider url %s", loc)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("no state in provider redirect")
	}
	return state
}

func googleCallback(state, code string) string {
	return "/auth/google/secrets?" + url.Values{"state": {state}, "code": {code}}.Encode()
}

// flakyStore fails ListSecrets while failing is set.
type flakyStore struct {
	ic.CredentialStore
	failing atomic.Bool
}

func (s *flakyStore) ListSecrets(ctx context.Context) ([]string, error) {
	if s.failing.Load() {
		return nil, errors.New("database is down")
	}
	return s.CredentialStore.ListSecrets(ctx)
}

// brokenSessions is a session backend that cannot be read.
type brokenSessions struct{}

func (brokenSessions) Find(token string) ([]byte, bool, error) {
	return nil, false, errors.New("session backend unavailable")
}
func (brokenSessions) Commit(token string, b []byte, expiry time.Time) error { return nil }
func (brokenSessions) Delete(token string) error                             { return nil }
