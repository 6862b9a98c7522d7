//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ic "github.com/panyam/incognito"
)

// Kind constants for Datastore entities
const (
	KindUser       = "User"
	KindUsername   = "Username"
	KindExternalID = "ExternalID"
)

// CredentialStore implements ic.CredentialStore using Google Cloud Datastore
type CredentialStore struct {
	client    *datastore.Client
	namespace string
}

// NewCredentialStore creates a new Datastore-backed CredentialStore
func NewCredentialStore(client *datastore.Client, namespace string) *CredentialStore {
	return &CredentialStore{client: client, namespace: namespace}
}

func (s *CredentialStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

// Index names carry a prefix so user supplied values can never collide with
// Datastore's reserved "__" names.
func (s *CredentialStore) usernameKey(username string) *datastore.Key {
	return s.namespacedKey(KindUsername, "u:"+username)
}

func (s *CredentialStore) externalIDKey(externalID string) *datastore.Key {
	return s.namespacedKey(KindExternalID, "g:"+externalID)
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*ic.User, error) {
	if id == "" {
		return nil, ic.ErrUserNotFound
	}
	var entity UserEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindUser, id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ic.ErrUserNotFound
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*ic.User, error) {
	return s.lookup(ctx, s.usernameKey(username))
}

func (s *CredentialStore) FindByExternalID(ctx context.Context, externalID string) (*ic.User, error) {
	return s.lookup(ctx, s.externalIDKey(externalID))
}

func (s *CredentialStore) lookup(ctx context.Context, indexKey *datastore.Key) (*ic.User, error) {
	var idx IndexEntity
	if err := s.client.Get(ctx, indexKey, &idx); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, ic.ErrUserNotFound
		}
		return nil, err
	}
	return s.FindByID(ctx, idx.UserID)
}

func (s *CredentialStore) Create(ctx context.Context, user *ic.User) (*ic.User, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		return s.createInTx(tx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *CredentialStore) createInTx(tx *datastore.Transaction, user *ic.User) error {
	now := time.Now().UTC()
	if user.Username != "" {
		var idx IndexEntity
		err := tx.Get(s.usernameKey(user.Username), &idx)
		if err == nil {
			return ic.ErrUsernameTaken
		} else if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if _, err := tx.Put(s.usernameKey(user.Username), &IndexEntity{UserID: user.ID, CreatedAt: now}); err != nil {
			return err
		}
	}
	if user.GoogleID != "" {
		if _, err := tx.Put(s.externalIDKey(user.GoogleID), &IndexEntity{UserID: user.ID, CreatedAt: now}); err != nil {
			return err
		}
	}
	key := s.namespacedKey(KindUser, user.ID)
	_, err := tx.Put(key, UserToEntity(user, key))
	return err
}

func (s *CredentialStore) Save(ctx context.Context, user *ic.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		key := s.namespacedKey(KindUser, user.ID)
		var current UserEntity
		if err := tx.Get(key, &current); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return ic.ErrUserNotFound
			}
			return err
		}

		now := time.Now().UTC()
		if user.Username != "" && user.Username != current.Username {
			var idx IndexEntity
			err := tx.Get(s.usernameKey(user.Username), &idx)
			if err == nil && idx.UserID != user.ID {
				return ic.ErrUsernameTaken
			} else if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
				return err
			}
			if _, err := tx.Put(s.usernameKey(user.Username), &IndexEntity{UserID: user.ID, CreatedAt: now}); err != nil {
				return err
			}
		}
		if user.GoogleID != "" && user.GoogleID != current.GoogleID {
			if _, err := tx.Put(s.externalIDKey(user.GoogleID), &IndexEntity{UserID: user.ID, CreatedAt: now}); err != nil {
				return err
			}
		}

		user.UpdatedAt = now
		_, err := tx.Put(key, UserToEntity(user, key))
		return err
	})
	return err
}

// FindOrCreateByExternalID reads the external id index and creates the user
// inside one transaction; Datastore aborts and retries the loser of a race.
func (s *CredentialStore) FindOrCreateByExternalID(ctx context.Context, externalID string) (*ic.User, bool, error) {
	if externalID == "" {
		return nil, false, errors.New("external id is required")
	}
	var user *ic.User
	var created bool
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		user, created = nil, false

		var idx IndexEntity
		err := tx.Get(s.externalIDKey(externalID), &idx)
		if err == nil {
			var entity UserEntity
			if err := tx.Get(s.namespacedKey(KindUser, idx.UserID), &entity); err != nil {
				return fmt.Errorf("external id %q points at missing user %q: %w", externalID, idx.UserID, err)
			}
			user = entity.ToUser()
			return nil
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		user = ic.NewFederatedUser(externalID)
		created = true
		return s.createInTx(tx, user)
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *CredentialStore) ListSecrets(ctx context.Context) ([]string, error) {
	q := datastore.NewQuery(KindUser).Namespace(s.namespace).FilterField("has_secret", "=", true)
	it := s.client.Run(ctx, q)

	var secrets []string
	for {
		var entity UserEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, entity.Secret)
	}
	return secrets, nil
}
