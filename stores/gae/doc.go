//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of the
// incognito credential store. It supports multi-tenancy through Datastore
// namespaces.
//
// # Datastore Kinds
//
//   - User: accounts, keyed by user id
//   - Username: uniqueness index, keyed by username, pointing at a User
//   - ExternalID: uniqueness index, keyed by Google account id, pointing at a User
//
// Index entities are written in the same transaction as the user, which is
// what makes Create and FindOrCreateByExternalID safe under concurrency.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	credentials := gae.NewCredentialStore(client, "")  // default namespace
package gae
