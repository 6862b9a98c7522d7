package incognito

import (
	"context"
	"time"
)

// Identity is the narrow view of an authenticated principal that the session
// layer needs.
type Identity interface {
	Id() string
}

// User is a single account. A user may have a local password, a Google id,
// or both. Secret is nil until the user submits one.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	PasswordHash string    `json:"password_hash,omitempty"`
	GoogleID     string    `json:"google_id,omitempty"`
	Secret       *string   `json:"secret,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Id() string { return u.ID }

// HasPassword is true for accounts registered with a local password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// Validate checks the record invariants before it is persisted.
func (u *User) Validate() error {
	if u.ID == "" {
		return NewAuthError(ErrCodeStorage, "user id is required", "id")
	}
	if u.PasswordHash == "" && u.GoogleID == "" {
		return NewAuthError(ErrCodeStorage, "user needs a password or an external id", "")
	}
	return nil
}

// SetSecret overwrites the user's secret.
func (u *User) SetSecret(secret string) {
	u.Secret = &secret
}

// CredentialStore persists users and their credential material.
//
// All lookups return ErrUserNotFound when no record matches. Username lookups
// are exact and case-sensitive. Implementations must be safe for concurrent use.
type CredentialStore interface {
	// FindByUsername looks up a locally registered user
	FindByUsername(ctx context.Context, username string) (*User, error)

	// FindByExternalID looks up a user by their Google account id
	FindByExternalID(ctx context.Context, externalID string) (*User, error)

	// FindByID looks up a user by internal id
	FindByID(ctx context.Context, id string) (*User, error)

	// Create inserts a new user. Returns ErrUsernameTaken if the username exists.
	Create(ctx context.Context, user *User) (*User, error)

	// Save updates an existing user (secret, linked external id)
	Save(ctx context.Context, user *User) error

	// FindOrCreateByExternalID returns the user owning externalID, creating a
	// federated-only user if none exists. At most one user is ever created per
	// externalID, even when called concurrently.
	FindOrCreateByExternalID(ctx context.Context, externalID string) (user *User, created bool, err error)

	// ListSecrets returns every non-empty secret, without owner information
	ListSecrets(ctx context.Context) ([]string, error)
}

// NewLocalUser builds a user record for a password registration.
func NewLocalUser(username, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           NewUserID(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewFederatedUser builds a user record for a first-time Google login.
func NewFederatedUser(externalID string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        NewUserID(),
		GoogleID:  externalID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
