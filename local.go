package incognito

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// HandleUserFunc is called once a user has proven who they are. authtype is
// "local" or "oauth", provider is "local" or the identity provider name.
type HandleUserFunc func(authtype string, provider string, user *User, w http.ResponseWriter, r *http.Request)

// Allows local username/password based registration and login
type LocalAuth struct {
	Store CredentialStore

	// Hasher for new passwords. Existing hashes are checked with CheckPassword
	// so switching hashers does not lock anyone out.
	Hasher PasswordHasher

	SignupPolicy *SignupPolicy

	// Form field names
	UsernameField string
	PasswordField string

	// Handler called after successful registration or login
	HandleUser HandleUserFunc

	// OnSignupError is called when signup fails. If nil, redirects to SignupURL.
	OnSignupError AuthErrorHandler

	// OnLoginError is called when login fails. If nil, redirects to LoginURL.
	OnLoginError AuthErrorHandler

	SignupURL string
	LoginURL  string

	dummyOnce sync.Once
	dummyHash string
}

// Register creates a local account. The username must not already exist and
// the password must satisfy the signup policy.
func (a *LocalAuth) Register(ctx context.Context, username, password string) (*User, error) {
	creds := &Credentials{Username: username, Password: password}
	if authErr := a.getSignupPolicy().Validate(creds); authErr != nil {
		return nil, authErr
	}

	if _, err := a.Store.FindByUsername(ctx, username); err == nil {
		return nil, usernameTaken()
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, StorageError(err)
	}

	hash, err := a.hasher().Hash(password)
	if err != nil {
		return nil, StorageError(err)
	}

	// The store's unique constraint decides races between two registrations.
	user, err := a.Store.Create(ctx, NewLocalUser(username, hash))
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return nil, usernameTaken()
		}
		return nil, StorageError(err)
	}
	log.Printf("Created local user %s (%s)", user.Username, user.ID)
	return user, nil
}

// Authenticate checks a username/password pair. Unknown users and wrong
// passwords both fail with ErrBadPassword.
func (a *LocalAuth) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := a.Store.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, StorageError(err)
		}
		a.burnDummyCompare(password)
		return nil, badCredentials()
	}
	if !user.HasPassword() {
		a.burnDummyCompare(password)
		return nil, badCredentials()
	}

	ok, err := CheckPassword(password, user.PasswordHash)
	if err != nil {
		slog.Error("unreadable password hash", "user", user.ID, "error", err)
		return nil, badCredentials()
	}
	if !ok {
		return nil, badCredentials()
	}
	return user, nil
}

// ServeHTTP handles login requests
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	creds, authErr := a.parseForm(r)
	if authErr != nil {
		a.handleLoginError(authErr, w, r)
		return
	}

	user, err := a.Authenticate(r.Context(), creds.Username, creds.Password)
	if err != nil {
		a.handleLoginError(AsAuthError(err), w, r)
		return
	}
	a.HandleUser("local", "local", user, w, r)
}

func (a *LocalAuth) parseForm(r *http.Request) (*Credentials, *AuthError) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") &&
		!strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return nil, NewAuthError(ErrCodeMissingField, "Expected a form submission", "")
	}
	if err := r.ParseForm(); err != nil {
		return nil, NewAuthError(ErrCodeMissingField, fmt.Sprintf("error parsing form: %v", err), "")
	}
	return &Credentials{
		Username: r.FormValue(a.getUsernameField()),
		Password: r.FormValue(a.getPasswordField()),
	}, nil
}

// burnDummyCompare spends roughly the time a real verify would, so a failed
// login does not reveal whether the username exists.
func (a *LocalAuth) burnDummyCompare(password string) {
	a.dummyOnce.Do(func() {
		hash, err := a.hasher().Hash("incognito-dummy-password")
		if err != nil {
			slog.Warn("could not build dummy hash", "error", err)
			return
		}
		a.dummyHash = hash
	})
	if a.dummyHash != "" {
		_, _ = CheckPassword(password, a.dummyHash)
	}
}

func (a *LocalAuth) hasher() PasswordHasher {
	if a.Hasher != nil {
		return a.Hasher
	}
	return BcryptHasher{}
}

func (a *LocalAuth) getSignupPolicy() SignupPolicy {
	if a.SignupPolicy != nil {
		return *a.SignupPolicy
	}
	return DefaultSignupPolicy()
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) getLoginURL() string {
	if a.LoginURL != "" {
		return a.LoginURL
	}
	return "/login"
}

func (a *LocalAuth) getSignupURL() string {
	if a.SignupURL != "" {
		return a.SignupURL
	}
	return "/register"
}

// handleLoginError uses the configured handler or redirects back to the login page
func (a *LocalAuth) handleLoginError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	logAuthError("login", err)
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	http.Redirect(w, r, a.getLoginURL(), http.StatusFound)
}

func logAuthError(op string, err *AuthError) {
	if err.Kind == KindStorage {
		slog.Error(op+" failed", "code", err.Code, "error", err.Err)
		return
	}
	slog.Info(op+" rejected", "code", err.Code, "field", err.Field)
}

func usernameTaken() *AuthError {
	return NewAuthError(ErrCodeUsernameTaken, "Username is already taken", "username").Wrap(ErrUsernameTaken)
}

func badCredentials() *AuthError {
	return NewAuthError(ErrCodeInvalidCreds, "Invalid credentials", "password").Wrap(ErrBadPassword)
}
