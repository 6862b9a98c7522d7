// Package incognito is a small multi-user site where people post secrets
// anonymously.
//
// Users sign up with a username and password or sign in with Google. Either
// way the session only remembers the user id; the account is reloaded from
// the CredentialStore on every request. Anyone logged in can read every
// submitted secret, but never who wrote it.
//
// # Pieces
//
// LocalAuth registers and authenticates username/password accounts.
// FederatedAuth maps a verified Google account id onto a local user, creating
// it on first sign in. SessionManager ties a browser session to a user and
// Middleware.EnsureUser keeps anonymous visitors out of the secrets pages.
// App wires all of these to the HTTP routes:
//
//	GET  /                      home
//	GET  /register, POST        registration form and handler
//	GET  /login, POST           login form and handler
//	GET  /logout                ends the session
//	GET  /auth/google           starts Google sign in
//	GET  /auth/google/secrets   Google callback
//	GET  /secrets               all secrets (login required)
//	GET  /submit, POST          post a secret (login required)
//	GET  /healthz               liveness probe
//
// # Usage
//
//	store := fs.NewFSCredentialStore("/var/lib/incognito")
//	app, err := incognito.NewApp(incognito.Options{Store: store})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	http.ListenAndServe(":3000", app.Handler())
//
// Backends for GORM (PostgreSQL, SQLite), Cloud Datastore and the file system
// live under stores/, and stores.Open picks one from configuration.
package incognito
