// Command incognito serves the secrets site.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ic "github.com/panyam/incognito"
	"github.com/panyam/incognito/config"
	"github.com/panyam/incognito/oauth2"
	"github.com/panyam/incognito/stores"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogLevel == slog.LevelDebug,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run serves until ctx is cancelled. If ready is non-nil the bound address is
// sent on it once the listener is up.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	backend, err := stores.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening stores: %w", err)
	}
	defer backend.Close()

	app, err := newApp(cfg, backend)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()
	log.Printf("Server started on port %s", cfg.Port)
	slog.Info("listening", "addr", ln.Addr().String(), "store", backend.Kind, "google", app.Google != nil)
	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newApp(cfg *config.Config, backend *stores.Backend) (*ic.App, error) {
	hasher, err := ic.NewPasswordHasher(cfg.PasswordHasher, cfg.HashCost)
	if err != nil {
		return nil, err
	}
	policy := ic.DefaultSignupPolicy()
	policy.MinPasswordLength = cfg.MinPasswordLength

	opts := ic.Options{
		Store:        backend.Credentials,
		SessionStore: backend.Sessions,
		Session: ic.SessionOptions{
			Lifetime:    cfg.SessionLifetime,
			IdleTimeout: cfg.SessionIdleTimeout,
			Secure:      cfg.CookieSecure,
		},
		Hasher:          hasher,
		SignupPolicy:    &policy,
		StateSigningKey: []byte(cfg.SessionSecret),
		Logger:          slog.Default(),
	}
	if cfg.GoogleEnabled() {
		google := oauth2.NewGoogleOAuth2(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.CallbackURL)
		google.Timeout = cfg.OAuthTimeout
		if cfg.GoogleUserInfoURL != "" {
			google.UserInfoURL = cfg.GoogleUserInfoURL
		}
		opts.Google = google
	} else {
		slog.Warn("google sign-in disabled: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}
	return ic.NewApp(opts)
}
