//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionStore implements scs.Store and scs.CtxStore on the sessions table.
type SessionStore struct {
	db          *gorm.DB
	stopCleanup chan struct{}
}

// NewSessionStore returns a session store. A positive cleanupInterval starts
// a goroutine that deletes expired rows; stop it with StopCleanup.
func NewSessionStore(db *gorm.DB, cleanupInterval time.Duration) *SessionStore {
	s := &SessionStore{db: db}
	if cleanupInterval > 0 {
		s.stopCleanup = make(chan struct{})
		go s.startCleanup(cleanupInterval)
	}
	return s
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var model SessionModel
	err := s.db.WithContext(ctx).First(&model, "token = ? AND expiry > ?", token, time.Now().UTC()).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return model.Data, true, nil
}

func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "expiry"}),
	}).Create(&SessionModel{Token: token, Data: b, Expiry: expiry.UTC()}).Error
}

func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Delete(&SessionModel{}, "token = ?", token).Error
}

// DeleteExpired removes every expired session and returns how many went.
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&SessionModel{}, "expiry <= ?", time.Now().UTC())
	return res.RowsAffected, res.Error
}

func (s *SessionStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := s.DeleteExpired(context.Background()); err != nil {
				slog.Error("session cleanup failed", "error", err)
			} else if n > 0 {
				slog.Debug("session cleanup", "deleted", n)
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// StopCleanup ends the background cleanup goroutine, if one was started.
func (s *SessionStore) StopCleanup() {
	if s.stopCleanup != nil {
		close(s.stopCleanup)
		s.stopCleanup = nil
	}
}
