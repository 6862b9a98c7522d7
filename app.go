package incognito

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/panyam/incognito/oauth2"
)

// Options configures an App. Only Store is required.
type Options struct {
	Store CredentialStore

	// Backing store for sessions. nil keeps sessions in memory.
	SessionStore scs.Store
	Session      SessionOptions

	Hasher       PasswordHasher
	SignupPolicy *SignupPolicy

	// Google enables "Sign in with Google" when set. NewApp wires its state
	// manager and callbacks.
	Google *oauth2.GoogleOAuth2

	// Key used to sign the pending OAuth state
	StateSigningKey []byte

	Logger *slog.Logger
}

// App is the secrets web application: routes, authenticators and sessions.
type App struct {
	Store      CredentialStore
	Sessions   *SessionManager
	Middleware Middleware
	Local      *LocalAuth
	Federated  *FederatedAuth
	Google     *oauth2.GoogleOAuth2
	Views      *Views

	logger *slog.Logger
	router *mux.Router
}

func NewApp(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("a credential store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	views, err := NewViews()
	if err != nil {
		return nil, fmt.Errorf("loading views: %w", err)
	}

	a := &App{
		Store:    opts.Store,
		Sessions: NewSessionManager(opts.Store, opts.SessionStore, opts.Session),
		Views:    views,
		logger:   logger,
	}
	a.Middleware = Middleware{Sessions: a.Sessions, LoginURL: "/login"}
	a.Local = &LocalAuth{
		Store:        opts.Store,
		Hasher:       opts.Hasher,
		SignupPolicy: opts.SignupPolicy,
		HandleUser:   a.SaveUserAndRedirect,
		SignupURL:    "/register",
		LoginURL:     "/login",
	}
	a.Federated = &FederatedAuth{
		Store:      opts.Store,
		HandleUser: a.SaveUserAndRedirect,
		FailureURL: "/login",
	}

	if g := opts.Google; g != nil {
		if len(opts.StateSigningKey) == 0 {
			return nil, errors.New("google login needs a state signing key")
		}
		g.States = oauth2.NewStateManager(opts.StateSigningKey, a.Sessions.Session)
		g.HandleUser = a.Federated.HandleProviderUser
		g.HandleFailure = a.Federated.HandleProviderFailure
		a.Google = g
	}

	a.setupRoutes()
	return a, nil
}

func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) setupRoutes() {
	r := mux.NewRouter()
	r.Use(RequestMiddleware(a.logger)...)

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(StaticHandler())

	// Everything below needs the session loaded.
	pages := r.PathPrefix("/").Subrouter()
	pages.Use(a.Sessions.LoadAndSave, a.Middleware.ExtractUser)

	pages.HandleFunc("/", a.page("home.html")).Methods(http.MethodGet)
	pages.HandleFunc("/register", a.page("register.html")).Methods(http.MethodGet)
	pages.HandleFunc("/register", a.Local.HandleSignup).Methods(http.MethodPost)
	pages.HandleFunc("/login", a.page("login.html")).Methods(http.MethodGet)
	pages.Handle("/login", a.Local).Methods(http.MethodPost)
	pages.HandleFunc("/logout", a.onLogout).Methods(http.MethodGet, http.MethodPost)

	pages.Handle("/secrets", a.Middleware.EnsureUser(http.HandlerFunc(a.handleSecrets))).Methods(http.MethodGet)
	pages.Handle("/submit", a.Middleware.EnsureUser(a.page("submit.html"))).Methods(http.MethodGet)
	pages.Handle("/submit", a.Middleware.EnsureUser(http.HandlerFunc(a.handleSubmit))).Methods(http.MethodPost)

	pages.HandleFunc("/auth/google", a.handleGoogleLogin).Methods(http.MethodGet)
	pages.HandleFunc("/auth/google/secrets", a.handleGoogleCallback).Methods(http.MethodGet)

	a.router = r
}

/**
 * Called by both authenticators once an identity has been verified.
 * Binds the user to a fresh session and sends them to the secrets page.
 */
func (a *App) SaveUserAndRedirect(authtype, provider string, user *User, w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Establish(r.Context(), user); err != nil {
		a.logger.Error("establishing session", "provider", provider, "error", err)
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	log.Printf("User %s logged in via %s/%s", user.ID, authtype, provider)
	http.Redirect(w, r, "/secrets", http.StatusFound)
}

func (a *App) onLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Destroy(r.Context()); err != nil {
		a.logger.Error("destroying session", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *App) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if a.Google == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	a.Google.HandleLogin(w, r)
}

func (a *App) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if a.Google == nil {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	a.Google.HandleCallback(w, r)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "ok")
}

// page renders a template that needs nothing beyond the common page data.
func (a *App) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Views.Render(w, r, name, a.pageData(r))
	}
}

func (a *App) pageData(r *http.Request) *PageData {
	return &PageData{
		User:          UserFromContext(r.Context()),
		GoogleEnabled: a.Google != nil,
	}
}
