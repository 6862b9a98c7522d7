package incognito

import (
	"fmt"
	"regexp"
)

// Credentials represents user credentials for signup or login
type Credentials struct {
	Username string
	Password string
}

// Usernames may be plain handles or email addresses.
var defaultUsernamePattern = regexp.MustCompile(`^[A-Za-z0-9._@+-]{1,64}$`)

const (
	DefaultMinPasswordLength = 5

	// bcrypt ignores everything past 72 bytes
	MaxPasswordLength = 72
)

// SignupPolicy defines what a registration must look like.
type SignupPolicy struct {
	MinPasswordLength int
	UsernamePattern   *regexp.Regexp
}

func DefaultSignupPolicy() SignupPolicy {
	return SignupPolicy{
		MinPasswordLength: DefaultMinPasswordLength,
		UsernamePattern:   defaultUsernamePattern,
	}
}

func (p SignupPolicy) GetMinPasswordLength() int {
	if p.MinPasswordLength > 0 {
		return p.MinPasswordLength
	}
	return DefaultMinPasswordLength
}

func (p SignupPolicy) GetUsernamePattern() *regexp.Regexp {
	if p.UsernamePattern != nil {
		return p.UsernamePattern
	}
	return defaultUsernamePattern
}

// Validate checks creds against the policy.
func (p SignupPolicy) Validate(creds *Credentials) *AuthError {
	if creds.Username == "" {
		return NewAuthError(ErrCodeMissingField, "Username is required", "username").Wrap(ErrInvalidUsername)
	}
	if creds.Password == "" {
		return NewAuthError(ErrCodeMissingField, "Password is required", "password").Wrap(ErrWeakPassword)
	}
	if !p.GetUsernamePattern().MatchString(creds.Username) {
		return NewAuthError(ErrCodeInvalidUsername,
			"Username must be 1-64 characters of letters, digits and . _ @ + -", "username").Wrap(ErrInvalidUsername)
	}
	if minLen := p.GetMinPasswordLength(); len(creds.Password) < minLen {
		return NewAuthError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters", minLen), "password").Wrap(ErrWeakPassword)
	}
	if len(creds.Password) > MaxPasswordLength {
		return NewAuthError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at most %d bytes", MaxPasswordLength), "password").Wrap(ErrWeakPassword)
	}
	return nil
}
