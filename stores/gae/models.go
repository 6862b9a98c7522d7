//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	ic "github.com/panyam/incognito"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	GoogleID     string         `datastore:"google_id"`
	Secret       string         `datastore:"secret,noindex"`
	HasSecret    bool           `datastore:"has_secret"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

// IndexEntity reserves a unique username or external id for a user
type IndexEntity struct {
	UserID    string    `datastore:"user_id,noindex"`
	CreatedAt time.Time `datastore:"created_at,noindex"`
}

func (e *UserEntity) ToUser() *ic.User {
	u := &ic.User{
		Username:     e.Username,
		PasswordHash: e.PasswordHash,
		GoogleID:     e.GoogleID,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if e.Key != nil {
		u.ID = e.Key.Name
	}
	if e.HasSecret {
		secret := e.Secret
		u.Secret = &secret
	}
	return u
}

func UserToEntity(u *ic.User, key *datastore.Key) *UserEntity {
	e := &UserEntity{
		Key:          key,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		GoogleID:     u.GoogleID,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.Secret != nil && *u.Secret != "" {
		e.Secret = *u.Secret
		e.HasSecret = true
	}
	return e
}
