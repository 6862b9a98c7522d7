package incognito

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/panyam/incognito/oauth2"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrWeakPassword    = errors.New("password does not meet policy")
	ErrInvalidUsername = errors.New("invalid username")
	ErrBadPassword     = errors.New("invalid credentials")
	ErrInvalidState    = oauth2.ErrInvalidState
	ErrInvalidProfile  = oauth2.ErrMissingAccount
)

// ErrorKind groups failures by how the HTTP layer reacts to them.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuthentication
	KindStorage
	KindExternalService
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindStorage:
		return "storage"
	case KindExternalService:
		return "external_service"
	}
	return "unknown"
}

// Error codes carried by AuthError
const (
	ErrCodeMissingField    = "missing_field"
	ErrCodeInvalidUsername = "invalid_username"
	ErrCodeWeakPassword    = "weak_password"
	ErrCodeUsernameTaken   = "username_taken"
	ErrCodeInvalidCreds    = "invalid_credentials"
	ErrCodeInvalidState    = "invalid_state"
	ErrCodeInvalidProfile  = "invalid_profile"
	ErrCodeProviderFailed  = "provider_failed"
	ErrCodeStorage         = "storage_error"
)

var codeKinds = map[string]ErrorKind{
	ErrCodeMissingField:    KindValidation,
	ErrCodeInvalidUsername: KindValidation,
	ErrCodeWeakPassword:    KindValidation,
	ErrCodeUsernameTaken:   KindValidation,
	ErrCodeInvalidCreds:    KindAuthentication,
	ErrCodeInvalidState:    KindAuthentication,
	ErrCodeInvalidProfile:  KindAuthentication,
	ErrCodeProviderFailed:  KindExternalService,
	ErrCodeStorage:         KindStorage,
}

// AuthError is returned by the authenticators. Message is safe to show to the
// user, Err (if any) is not.
type AuthError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError creates an AuthError whose kind is derived from the code.
func NewAuthError(code, message, field string) *AuthError {
	kind, ok := codeKinds[code]
	if !ok {
		kind = KindStorage
	}
	return &AuthError{Kind: kind, Code: code, Message: message, Field: field}
}

// Wrap attaches the underlying cause.
func (e *AuthError) Wrap(err error) *AuthError {
	e.Err = err
	return e
}

// StorageError wraps a backend failure. The message is deliberately generic.
func StorageError(err error) *AuthError {
	return NewAuthError(ErrCodeStorage, "Something went wrong, please try again", "").Wrap(err)
}

// KindOf reports the kind of err. Errors that are not AuthErrors are treated
// as storage failures.
func KindOf(err error) ErrorKind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindStorage
}

// AsAuthError converts any error to an AuthError, wrapping unknown ones as
// storage failures.
func AsAuthError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return StorageError(err)
}

// AuthErrorHandler handles an auth failure. Returns true if the response was written.
type AuthErrorHandler func(err *AuthError, w http.ResponseWriter, r *http.Request) bool
