package oauth2_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panyam/incognito/oauth2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oauth2lib "golang.org/x/oauth2"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// memStates is a single-session stand-in for the scs session manager.
type memStates struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemStates() *memStates { return &memStates{m: map[string]string{}} }

func (s *memStates) Put(ctx context.Context, key string, val any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = val.(string)
}

func (s *memStates) PopString(ctx context.Context, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.m[key]
	delete(s.m, key)
	return v
}

// mockOAuthServer stands in for the provider's /token and /userinfo endpoints.
type mockOAuthServer struct {
	server           *httptest.Server
	userInfoResponse map[string]any
	tokenError       bool
	userInfoError    bool
	tokenDelay       time.Duration
	tokenCalls       atomic.Int32
}

func newMockOAuthServer() *mockOAuthServer {
	mock := &mockOAuthServer{
		userInfoResponse: map[string]any{
			"sub":  "google-12345",
			"name": "Test User",
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		mock.tokenCalls.Add(1)
		if mock.tokenDelay > 0 {
			time.Sleep(mock.tokenDelay)
		}
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if mock.userInfoError || r.Header.Get("Authorization") != "Bearer mock_access_token" {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	})
	mock.server = httptest.NewServer(mux)
	return mock
}

func (m *mockOAuthServer) Close() { m.server.Close() }

type callbackResult struct {
	profile *oauth2.Profile
	err     error
}

func newTestGoogle(mock *mockOAuthServer, states oauth2.StateStore) (*oauth2.GoogleOAuth2, *callbackResult) {
	g := oauth2.NewGoogleOAuth2("test-client-id", "test-client-secret", "http://localhost:3000/auth/google/secrets")
	g.SetEndpoint(oauth2lib.Endpoint{
		AuthURL:   mock.server.URL + "/auth",
		TokenURL:  mock.server.URL + "/token",
		AuthStyle: oauth2lib.AuthStyleInParams,
	})
	g.UserInfoURL = mock.server.URL + "/userinfo"
	g.States = oauth2.NewStateManager(testKey, states)

	result := &callbackResult{}
	g.HandleUser = func(provider string, token *oauth2lib.Token, profile *oauth2.Profile, w http.ResponseWriter, r *http.Request) {
		result.profile = profile
		http.Redirect(w, r, "/secrets", http.StatusFound)
	}
	g.HandleFailure = func(provider string, err error, w http.ResponseWriter, r *http.Request) {
		result.err = err
		http.Redirect(w, r, "/login", http.StatusFound)
	}
	return g, result
}

func callback(g *oauth2.GoogleOAuth2, query url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/google/secrets?"+query.Encode(), nil)
	rr := httptest.NewRecorder()
	g.HandleCallback(rr, req)
	return rr
}

func TestHandleLoginRedirectsToProvider(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()
	states := newMemStates()
	g, _ := newTestGoogle(mock, states)

	rr := httptest.NewRecorder()
	g.HandleLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/google", nil))

	require.Equal(t, http.StatusFound, rr.Code)
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), mock.server.URL+"/auth"))

	q := loc.Query()
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000/auth/google/secrets", q.Get("redirect_uri"))
	assert.Equal(t, "profile", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.NotEmpty(t, q.Get("state"))
	assert.NotEmpty(t, states.m["oauthState"], "nonce should be parked in the session")
}

func TestStateManager(t *testing.T) {
	ctx := context.Background()

	t.Run("valid state is accepted once", func(t *testing.T) {
		sm := oauth2.NewStateManager(testKey, newMemStates())
		state, err := sm.Issue(ctx)
		require.NoError(t, err)

		assert.NoError(t, sm.Consume(ctx, state))
		assert.ErrorIs(t, sm.Consume(ctx, state), oauth2.ErrInvalidState)
	})

	t.Run("tampered state is rejected and still consumed", func(t *testing.T) {
		sm := oauth2.NewStateManager(testKey, newMemStates())
		state, err := sm.Issue(ctx)
		require.NoError(t, err)

		tampered := state[:len(state)-2] + "xx"
		assert.ErrorIs(t, sm.Consume(ctx, tampered), oauth2.ErrInvalidState)
		assert.ErrorIs(t, sm.Consume(ctx, state), oauth2.ErrInvalidState)
	})

	t.Run("state signed with another key is rejected", func(t *testing.T) {
		store := newMemStates()
		other := oauth2.NewStateManager([]byte("a-completely-different-signing-key"), store)
		state, err := other.Issue(ctx)
		require.NoError(t, err)

		sm := oauth2.NewStateManager(testKey, store)
		assert.ErrorIs(t, sm.Consume(ctx, state), oauth2.ErrInvalidState)
	})

	t.Run("state from another session is rejected", func(t *testing.T) {
		mine := oauth2.NewStateManager(testKey, newMemStates())
		theirs := oauth2.NewStateManager(testKey, newMemStates())
		_, err := mine.Issue(ctx)
		require.NoError(t, err)
		state, err := theirs.Issue(ctx)
		require.NoError(t, err)

		assert.ErrorIs(t, mine.Consume(ctx, state), oauth2.ErrInvalidState)
	})

	t.Run("expired state is rejected", func(t *testing.T) {
		sm := oauth2.NewStateManager(testKey, newMemStates())
		sm.TTL = time.Nanosecond
		state, err := sm.Issue(ctx)
		require.NoError(t, err)

		err = sm.Consume(ctx, state)
		assert.ErrorIs(t, err, oauth2.ErrInvalidState)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("no pending state", func(t *testing.T) {
		sm := oauth2.NewStateManager(testKey, newMemStates())
		assert.ErrorIs(t, sm.Consume(ctx, "anything"), oauth2.ErrInvalidState)
	})
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("success hands the profile over", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		g, result := newTestGoogle(mock, newMemStates())
		state, err := g.States.Issue(ctx)
		require.NoError(t, err)

		rr := callback(g, url.Values{"state": {state}, "code": {"auth-code"}})

		assert.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "/secrets", rr.Header().Get("Location"))
		require.NoError(t, result.err)
		require.NotNil(t, result.profile)
		assert.Equal(t, "google-12345", result.profile.ID)
		assert.Equal(t, "Test User", result.profile.Name)
	})

	t.Run("v2 userinfo id is accepted", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		mock.userInfoResponse = map[string]any{"id": "v2-777", "name": "Old Style"}
		g, result := newTestGoogle(mock, newMemStates())
		state, _ := g.States.Issue(ctx)

		callback(g, url.Values{"state": {state}, "code": {"auth-code"}})

		require.NotNil(t, result.profile)
		assert.Equal(t, "v2-777", result.profile.ID)
	})

	t.Run("replayed callback fails", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		g, result := newTestGoogle(mock, newMemStates())
		state, _ := g.States.Issue(ctx)

		callback(g, url.Values{"state": {state}, "code": {"auth-code"}})
		require.NotNil(t, result.profile)

		result.profile = nil
		rr := callback(g, url.Values{"state": {state}, "code": {"auth-code"}})
		assert.Equal(t, "/login", rr.Header().Get("Location"))
		assert.Nil(t, result.profile)
		assert.ErrorIs(t, result.err, oauth2.ErrInvalidState)
	})

	t.Run("bad state never reaches the provider", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		g, result := newTestGoogle(mock, newMemStates())
		_, _ = g.States.Issue(ctx)

		rr := callback(g, url.Values{"state": {"forged"}, "code": {"auth-code"}})

		assert.Equal(t, "/login", rr.Header().Get("Location"))
		assert.ErrorIs(t, result.err, oauth2.ErrInvalidState)
		assert.Nil(t, result.profile)
		assert.Equal(t, int32(0), mock.tokenCalls.Load())
	})

	t.Run("provider error", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		g, result := newTestGoogle(mock, newMemStates())
		state, _ := g.States.Issue(ctx)

		rr := callback(g, url.Values{"state": {state}, "error": {"access_denied"}})

		assert.Equal(t, "/login", rr.Header().Get("Location"))
		assert.ErrorIs(t, result.err, oauth2.ErrProviderDenied)
	})

	t.Run("missing code", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		g, result := newTestGoogle(mock, newMemStates())
		state, _ := g.States.Issue(ctx)

		callback(g, url.Values{"state": {state}})
		assert.ErrorIs(t, result.err, oauth2.ErrMissingCode)
	})

	t.Run("token exchange failure", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		mock.tokenError = true
		g, result := newTestGoogle(mock, newMemStates())
		state, _ := g.States.Issue(ctx)

		rr := callback(g, url.Values{"state": {state}, "code": {"auth-code"}})
		assert.Equal(t, "/login", rr.Header().Get("Location"))
		assert.ErrorIs(t, result.err, oauth2.ErrExchangeFailed)
	})

	t.Run("userinfo failure", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		mock.userInfoError = true
		g, result := newTestGoogle(mock, newMemStates())
		state, _ := g.States.Issue(ctx)

		callback(g, url.Values{"state": {state}, "code": {"auth-code"}})
		assert.ErrorIs(t, result.err, oauth2.ErrProfileFailed)
	})

	t.Run("profile without an id", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		mock.userInfoResponse = map[string]any{"name": "Nobody"}
		g, result := newTestGoogle(mock, newMemStates())
		state, _ := g.States.Issue(ctx)

		callback(g, url.Values{"state": {state}, "code": {"auth-code"}})
		assert.ErrorIs(t, result.err, oauth2.ErrMissingAccount)
		assert.Nil(t, result.profile)
	})

	t.Run("slow provider times out", func(t *testing.T) {
		mock := newMockOAuthServer()
		defer mock.Close()
		mock.tokenDelay = 300 * time.Millisecond
		g, result := newTestGoogle(mock, newMemStates())
		g.Timeout = 50 * time.Millisecond
		state, _ := g.States.Issue(ctx)

		start := time.Now()
		rr := callback(g, url.Values{"state": {state}, "code": {"auth-code"}})

		assert.Less(t, time.Since(start), 250*time.Millisecond)
		assert.Equal(t, "/login", rr.Header().Get("Location"))
		assert.True(t, errors.Is(result.err, oauth2.ErrExchangeFailed))
	})
}
