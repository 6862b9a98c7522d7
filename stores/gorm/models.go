//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ic "github.com/panyam/incognito"
)

// UserModel is the GORM model for users. Username and GoogleID are nullable
// so their unique indexes allow any number of accounts without one.
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:64"`
	Username     *string   `gorm:"size:255;uniqueIndex"`
	PasswordHash string    `gorm:"size:255"`
	GoogleID     *string   `gorm:"size:255;uniqueIndex"`
	Secret       *string   `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime;index"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *ic.User {
	u := &ic.User{
		ID:           m.ID,
		PasswordHash: m.PasswordHash,
		Secret:       m.Secret,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.Username != nil {
		u.Username = *m.Username
	}
	if m.GoogleID != nil {
		u.GoogleID = *m.GoogleID
	}
	return u
}

func UserToModel(u *ic.User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Username:     nullable(u.Username),
		PasswordHash: u.PasswordHash,
		GoogleID:     nullable(u.GoogleID),
		Secret:       u.Secret,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// SessionModel is the GORM model for scs sessions
type SessionModel struct {
	Token  string    `gorm:"primaryKey;size:64"`
	Data   []byte    `gorm:"not null"`
	Expiry time.Time `gorm:"not null;index"`
}

func (SessionModel) TableName() string {
	return "sessions"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
