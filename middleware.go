package incognito

import (
	"context"
	"net/http"
)

type userContextKey struct{}

// IsAuthenticated reports whether user is a real, logged in user.
func IsAuthenticated(user *User) bool {
	return user != nil && user.ID != ""
}

// UserFromContext returns the user ExtractUser stored for this request, or nil.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}

// Middleware resolves the session user and guards routes that need one.
// It must run inside SessionManager.LoadAndSave.
type Middleware struct {
	Sessions *SessionManager

	// Where anonymous requests to guarded routes are sent. Defaults to /login.
	LoginURL string
}

/**
 * Fetches the user from the session and makes it available to downstream
 * handlers via UserFromContext.
 *
 * This does not redirect when there is no user. Use EnsureUser for that.
 */
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) != nil {
			next.ServeHTTP(w, r)
			return
		}
		if user, ok := m.Sessions.Resolve(r.Context()); ok {
			r = r.WithContext(context.WithValue(r.Context(), userContextKey{}, user))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser lets the request through only if it carries an authenticated
// session. Everything else is redirected to the login page before next runs.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	return m.ExtractUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthenticated(UserFromContext(r.Context())) {
			http.Redirect(w, r, m.loginURL(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (m *Middleware) loginURL() string {
	if m.LoginURL != "" {
		return m.LoginURL
	}
	return "/login"
}
