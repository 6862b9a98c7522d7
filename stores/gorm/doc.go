//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the incognito
// credential store and an scs session store. It supports any database that
// GORM supports; PostgreSQL and SQLite are wired up by stores.Open.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: accounts, with unique indexes on username and google_id
//   - sessions: scs session tokens, data and expiry
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	_ = gormstore.AutoMigrate(db)
//	credentials := gormstore.NewCredentialStore(db)
//	sessions := gormstore.NewSessionStore(db, 5*time.Minute)
package gorm
