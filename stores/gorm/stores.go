//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	ic "github.com/panyam/incognito"
)

// AutoMigrate runs database migrations for all incognito tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&SessionModel{},
	)
}

// CredentialStore implements ic.CredentialStore using GORM
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*ic.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*ic.User, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *CredentialStore) FindByExternalID(ctx context.Context, externalID string) (*ic.User, error) {
	return s.first(ctx, "google_id = ?", externalID)
}

func (s *CredentialStore) first(ctx context.Context, query string, arg string) (*ic.User, error) {
	if arg == "" {
		return nil, ic.ErrUserNotFound
	}
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ic.ErrUserNotFound
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *CredentialStore) Create(ctx context.Context, user *ic.User) (*ic.User, error) {
	if err := user.Validate(); err != nil {
		return nil, err
	}
	model := UserToModel(user)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicate(err) && s.usernameHeldByOther(ctx, user) {
			return nil, ic.ErrUsernameTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return model.ToUser(), nil
}

func (s *CredentialStore) Save(ctx context.Context, user *ic.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&UserModel{ID: user.ID}).
		Select("username", "password_hash", "google_id", "secret", "updated_at").
		Updates(UserToModel(user))
	if res.Error != nil {
		if isDuplicate(res.Error) && s.usernameHeldByOther(ctx, user) {
			return ic.ErrUsernameTaken
		}
		return fmt.Errorf("saving user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ic.ErrUserNotFound
	}
	return nil
}

// FindOrCreateByExternalID inserts with ON CONFLICT DO NOTHING against the
// google_id unique index, then reads back whichever row won.
func (s *CredentialStore) FindOrCreateByExternalID(ctx context.Context, externalID string) (*ic.User, bool, error) {
	if externalID == "" {
		return nil, false, errors.New("external id is required")
	}
	db := s.db.WithContext(ctx)

	if user, err := s.FindByExternalID(ctx, externalID); err == nil {
		return user, false, nil
	} else if !errors.Is(err, ic.ErrUserNotFound) {
		return nil, false, err
	}

	model := UserToModel(ic.NewFederatedUser(externalID))
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "google_id"}},
		DoNothing: true,
	}).Create(model)
	if res.Error != nil {
		return nil, false, fmt.Errorf("creating federated user: %w", res.Error)
	}
	created := res.RowsAffected == 1

	user, err := s.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func (s *CredentialStore) ListSecrets(ctx context.Context) ([]string, error) {
	var secrets []string
	err := s.db.WithContext(ctx).Model(&UserModel{}).
		Where("secret IS NOT NULL AND secret <> ''").
		Order("updated_at").
		Pluck("secret", &secrets).Error
	return secrets, err
}

// usernameHeldByOther reports whether a unique violation for user came from
// the username index rather than google_id or the primary key.
func (s *CredentialStore) usernameHeldByOther(ctx context.Context, user *ic.User) bool {
	if user.Username == "" {
		return false
	}
	existing, err := s.FindByUsername(ctx, user.Username)
	return err == nil && existing.ID != user.ID
}

// isDuplicate recognises unique violations whether or not the dialect
// translates them to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
