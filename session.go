package incognito

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
)

const (
	sessionUserKey = "loggedInUserId"

	DefaultSessionCookieName  = "incognito_session"
	DefaultSessionLifetime    = 24 * time.Hour
	DefaultSessionIdleTimeout = 30 * time.Minute
)

// SessionOptions configures the session cookie and expiry.
type SessionOptions struct {
	CookieName  string
	Lifetime    time.Duration
	IdleTimeout time.Duration
	Secure      bool
}

// SessionManager binds a browser session to an authenticated user. Only the
// user id is kept in the session; the user record is read from the store on
// every request.
type SessionManager struct {
	Session *scs.SessionManager
	Store   CredentialStore
}

// NewSessionManager creates a session manager over sessionStore. A nil
// sessionStore keeps sessions in process memory.
func NewSessionManager(store CredentialStore, sessionStore scs.Store, opts SessionOptions) *SessionManager {
	sm := scs.New()
	if sessionStore != nil {
		sm.Store = sessionStore
	}
	sm.Lifetime = opts.Lifetime
	if sm.Lifetime <= 0 {
		sm.Lifetime = DefaultSessionLifetime
	}
	sm.IdleTimeout = opts.IdleTimeout
	sm.Cookie.Name = opts.CookieName
	if sm.Cookie.Name == "" {
		sm.Cookie.Name = DefaultSessionCookieName
	}
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"
	sm.Cookie.Secure = opts.Secure
	sm.ErrorFunc = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.Error("session error", "path", r.URL.Path, "error", err)
		redirectHome(w, r)
	}
	return &SessionManager{Session: sm, Store: store}
}

// LoadAndSave loads the session for each request and writes the cookie back.
func (s *SessionManager) LoadAndSave(next http.Handler) http.Handler {
	return s.Session.LoadAndSave(next)
}

// Establish makes user the owner of the session in ctx. The session token is
// rotated first so a token planted before login is useless afterwards.
func (s *SessionManager) Establish(ctx context.Context, user Identity) error {
	if user == nil || user.Id() == "" {
		return errors.New("cannot establish a session without a user")
	}
	if err := s.Session.RenewToken(ctx); err != nil {
		return err
	}
	s.Session.Put(ctx, sessionUserKey, user.Id())
	return nil
}

// Resolve returns the user bound to the session in ctx. Sessions without a
// user, or whose user can no longer be loaded, are anonymous.
func (s *SessionManager) Resolve(ctx context.Context) (*User, bool) {
	userID := s.Session.GetString(ctx, sessionUserKey)
	if userID == "" {
		return nil, false
	}
	user, err := s.Store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			slog.Warn("session refers to a missing user", "user", userID)
		} else {
			slog.Error("loading session user", "user", userID, "error", err)
		}
		return nil, false
	}
	return user, true
}

// Destroy ends the session in ctx. Destroying an anonymous or already
// destroyed session is a no-op.
func (s *SessionManager) Destroy(ctx context.Context) error {
	return s.Session.Destroy(ctx)
}

// EstablishToken is Establish outside of an HTTP request: it starts a fresh
// session for user, persists it and returns the token a client would present.
func (s *SessionManager) EstablishToken(ctx context.Context, user Identity) (string, error) {
	ctx, err := s.Session.Load(ctx, "")
	if err != nil {
		return "", err
	}
	if err := s.Establish(ctx, user); err != nil {
		return "", err
	}
	token, _, err := s.Session.Commit(ctx)
	return token, err
}

// ResolveToken resolves the user for a raw session token.
func (s *SessionManager) ResolveToken(ctx context.Context, token string) (*User, bool) {
	ctx, err := s.Session.Load(ctx, token)
	if err != nil {
		slog.Error("loading session", "error", err)
		return nil, false
	}
	return s.Resolve(ctx)
}

// DestroyToken ends the session identified by token.
func (s *SessionManager) DestroyToken(ctx context.Context, token string) error {
	ctx, err := s.Session.Load(ctx, token)
	if err != nil {
		return err
	}
	return s.Destroy(ctx)
}
