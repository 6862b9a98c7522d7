package incognito

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"

	"github.com/panyam/incognito/oauth2"
	oauth2lib "golang.org/x/oauth2"
)

// FederatedAuth maps verified provider identities onto local users.
type FederatedAuth struct {
	Store CredentialStore

	// HandleUser is called with the resolved user
	HandleUser HandleUserFunc

	// Where failed provider logins are sent. Defaults to /login.
	FailureURL string
}

// Resolve returns the user owning externalID, creating one on first login.
func (f *FederatedAuth) Resolve(ctx context.Context, externalID string) (*User, error) {
	if externalID == "" {
		return nil, NewAuthError(ErrCodeInvalidProfile, "Provider did not identify the account", "").Wrap(ErrInvalidProfile)
	}
	user, created, err := f.Store.FindOrCreateByExternalID(ctx, externalID)
	if err != nil {
		return nil, StorageError(err)
	}
	if created {
		log.Printf("Created federated user %s", user.ID)
	}
	return user, nil
}

// HandleProviderUser is the oauth2.HandleUserFunc for a provider flow.
func (f *FederatedAuth) HandleProviderUser(provider string, token *oauth2lib.Token, profile *oauth2.Profile, w http.ResponseWriter, r *http.Request) {
	externalID := ""
	if profile != nil {
		externalID = profile.ID
	}
	user, err := f.Resolve(r.Context(), externalID)
	if err != nil {
		f.HandleProviderFailure(provider, err, w, r)
		return
	}
	f.HandleUser("oauth", provider, user, w, r)
}

// HandleProviderFailure is the oauth2.HandleFailureFunc for a provider flow.
func (f *FederatedAuth) HandleProviderFailure(provider string, err error, w http.ResponseWriter, r *http.Request) {
	var authErr *AuthError
	switch {
	case errors.As(err, &authErr):
	case errors.Is(err, oauth2.ErrInvalidState):
		authErr = NewAuthError(ErrCodeInvalidState, "Login attempt expired or was tampered with", "").Wrap(err)
	case errors.Is(err, oauth2.ErrMissingAccount):
		authErr = NewAuthError(ErrCodeInvalidProfile, "Provider did not identify the account", "").Wrap(err)
	default:
		authErr = NewAuthError(ErrCodeProviderFailed, "Could not sign in with "+provider, "").Wrap(err)
	}
	slog.Warn("federated login failed", "provider", provider, "kind", authErr.Kind.String(), "code", authErr.Code, "error", authErr.Err)

	failureURL := f.FailureURL
	if failureURL == "" {
		failureURL = "/login"
	}
	http.Redirect(w, r, failureURL, http.StatusFound)
}
