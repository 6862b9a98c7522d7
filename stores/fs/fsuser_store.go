package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	ic "github.com/panyam/incognito"
)

// indexEntry points a unique lookup key at a user id.
type indexEntry struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FSCredentialStore stores users as JSON files.
//
// # File Structure
//
//	{StoragePath}/
//	├── users/<id>.json            # the user record
//	├── usernames/<hex>.json       # username -> user id
//	└── externalids/<hex>.json     # google id -> user id
//
// # Concurrency Model
//
// A store-wide mutex serialises every operation, which makes the
// check-then-create in Create and FindOrCreateByExternalID atomic within one
// process. Point several processes at the same directory and that no longer
// holds; use the GORM or Datastore store for that.
type FSCredentialStore struct {
	StoragePath string

	mu sync.Mutex
}

func NewFSCredentialStore(storagePath string) *FSCredentialStore {
	return &FSCredentialStore{StoragePath: storagePath}
}

func (s *FSCredentialStore) userPath(id string) string {
	return filepath.Join(s.StoragePath, "users", filepath.Base(id)+".json")
}

func (s *FSCredentialStore) usernamePath(username string) string {
	return filepath.Join(s.StoragePath, "usernames", keyFileName(username))
}

func (s *FSCredentialStore) externalIDPath(externalID string) string {
	return filepath.Join(s.StoragePath, "externalids", keyFileName(externalID))
}

func (s *FSCredentialStore) FindByID(ctx context.Context, id string) (*ic.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readUser(id)
}

func (s *FSCredentialStore) FindByUsername(ctx context.Context, username string) (*ic.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(s.usernamePath(username))
}

func (s *FSCredentialStore) FindByExternalID(ctx context.Context, externalID string) (*ic.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(s.externalIDPath(externalID))
}

func (s *FSCredentialStore) Create(ctx context.Context, user *ic.User) (*ic.User, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username != "" {
		if exists(s.usernamePath(user.Username)) {
			return nil, ic.ErrUsernameTaken
		}
	}
	if user.GoogleID != "" && exists(s.externalIDPath(user.GoogleID)) {
		return nil, fmt.Errorf("external id %q already linked", user.GoogleID)
	}
	if err := s.writeUser(user); err != nil {
		return nil, err
	}
	if err := s.writeIndexes(user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *FSCredentialStore) Save(ctx context.Context, user *ic.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readUser(user.ID); err != nil {
		return err
	}
	if user.Username != "" {
		var idx indexEntry
		if err := readJSON(s.usernamePath(user.Username), &idx); err == nil && idx.UserID != user.ID {
			return ic.ErrUsernameTaken
		}
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.writeUser(user); err != nil {
		return err
	}
	return s.writeIndexes(user)
}

func (s *FSCredentialStore) FindOrCreateByExternalID(ctx context.Context, externalID string) (*ic.User, bool, error) {
	if externalID == "" {
		return nil, false, errors.New("external id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, err := s.lookup(s.externalIDPath(externalID))
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ic.ErrUserNotFound) {
		return nil, false, err
	}

	user = ic.NewFederatedUser(externalID)
	if err := s.writeUser(user); err != nil {
		return nil, false, err
	}
	if err := s.writeIndexes(user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *FSCredentialStore) ListSecrets(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.StoragePath, "users"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var users []*ic.User
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		user, err := s.readUser(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		if user.Secret != nil && *user.Secret != "" {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UpdatedAt.Before(users[j].UpdatedAt) })

	secrets := make([]string, 0, len(users))
	for _, u := range users {
		secrets = append(secrets, *u.Secret)
	}
	return secrets, nil
}

func (s *FSCredentialStore) lookup(indexPath string) (*ic.User, error) {
	var idx indexEntry
	if err := readJSON(indexPath, &idx); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ic.ErrUserNotFound
		}
		return nil, err
	}
	return s.readUser(idx.UserID)
}

func (s *FSCredentialStore) readUser(id string) (*ic.User, error) {
	if id == "" {
		return nil, ic.ErrUserNotFound
	}
	var user ic.User
	if err := readJSON(s.userPath(id), &user); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ic.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *FSCredentialStore) writeUser(user *ic.User) error {
	return writeJSON(s.userPath(user.ID), user)
}

func (s *FSCredentialStore) writeIndexes(user *ic.User) error {
	now := time.Now().UTC()
	if user.Username != "" {
		if err := writeJSON(s.usernamePath(user.Username), indexEntry{UserID: user.ID, CreatedAt: now}); err != nil {
			return err
		}
	}
	if user.GoogleID != "" {
		if err := writeJSON(s.externalIDPath(user.GoogleID), indexEntry{UserID: user.ID, CreatedAt: now}); err != nil {
			return err
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
