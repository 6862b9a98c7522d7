// Package stores picks the credential and session backends from configuration.
package stores

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ic "github.com/panyam/incognito"
	"github.com/panyam/incognito/config"
	"github.com/panyam/incognito/stores/fs"
	"github.com/panyam/incognito/stores/gae"
	gormstore "github.com/panyam/incognito/stores/gorm"
	"github.com/panyam/incognito/stores/redisstore"
)

const sessionCleanupInterval = 5 * time.Minute

// Backend is the set of stores the app runs on.
type Backend struct {
	Kind        string
	Credentials ic.CredentialStore

	// nil means in-memory sessions
	Sessions scs.Store

	closers []func() error
}

// Close releases every connection the backend opened.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the backend described by cfg:
//
//	postgres://... or postgresql://...  GORM on PostgreSQL, sessions in SQL
//	sqlite://path                       GORM on SQLite, sessions in SQL
//	datastore://project-id              Cloud Datastore
//	fs://path or empty                  JSON files (DataDir when empty)
//
// REDIS_URL, when set, moves sessions to Redis whatever the credential store.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	b, err := openCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RedisURL != "" {
		rdb, err := redisstore.Connect(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		b.closers = append(b.closers, rdb.Close)
		b.Sessions = redisstore.New(rdb)
	}
	return b, nil
}

func openCredentials(ctx context.Context, cfg *config.Config) (*Backend, error) {
	dsn := cfg.DatabaseURL
	scheme := ""
	if i := strings.Index(dsn, "://"); i > 0 {
		scheme = strings.ToLower(dsn[:i])
	}

	switch scheme {
	case "postgres", "postgresql":
		return openGorm("postgres", postgres.Open(dsn))
	case "sqlite", "sqlite3":
		return openGorm("sqlite", sqlite.Open(strings.TrimPrefix(dsn, scheme+"://")))
	case "datastore":
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("parsing datastore url: %w", err)
		}
		client, err := datastore.NewClient(ctx, u.Host)
		if err != nil {
			return nil, fmt.Errorf("connecting to datastore: %w", err)
		}
		return &Backend{
			Kind:        "datastore",
			Credentials: gae.NewCredentialStore(client, cfg.DatastoreNamespace),
			closers:     []func() error{client.Close},
		}, nil
	case "fs", "":
		dir := strings.TrimPrefix(dsn, "fs://")
		if dir == "" {
			dir = cfg.DataDir
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		return &Backend{Kind: "fs", Credentials: fs.NewFSCredentialStore(dir)}, nil
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme %q", scheme)
}

func openGorm(kind string, dialector gorm.Dialector) (*Backend, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", kind, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if kind == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrating %s: %w", kind, err)
	}
	slog.Info("database ready", "kind", kind)

	sessions := gormstore.NewSessionStore(db, sessionCleanupInterval)
	return &Backend{
		Kind:        kind,
		Credentials: gormstore.NewCredentialStore(db),
		Sessions:    sessions,
		closers: []func() error{
			sqlDB.Close,
			func() error { sessions.StopCleanup(); return nil },
		},
	}, nil
}
