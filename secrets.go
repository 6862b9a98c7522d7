package incognito

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// MaxSecretLength caps a submitted secret, in bytes.
const MaxSecretLength = 4096

var ErrEmptySecret = errors.New("secret is empty")

// SubmitSecret replaces the secret of the given user. The user is re-read
// from the store so concurrent changes to other fields are not lost.
func (a *App) SubmitSecret(ctx context.Context, userID, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return NewAuthError(ErrCodeMissingField, "Secret is required", "secret").Wrap(ErrEmptySecret)
	}
	if len(secret) > MaxSecretLength {
		return NewAuthError(ErrCodeMissingField, "Secret is too long", "secret")
	}
	user, err := a.Store.FindByID(ctx, userID)
	if err != nil {
		return StorageError(err)
	}
	user.SetSecret(secret)
	user.UpdatedAt = time.Now().UTC()
	if err := a.Store.Save(ctx, user); err != nil {
		return StorageError(err)
	}
	return nil
}

func (a *App) handleSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := a.Store.ListSecrets(r.Context())
	if err != nil {
		a.logger.Error("listing secrets", "error", err)
		redirectHome(w, r)
		return
	}
	data := a.pageData(r)
	data.Secrets = secrets
	a.Views.Render(w, r, "secrets.html", data)
}

func (a *App) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}
	if err := a.SubmitSecret(r.Context(), user.ID, r.FormValue("secret")); err != nil {
		authErr := AsAuthError(err)
		logAuthError("submit", authErr)
		http.Redirect(w, r, "/submit", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
}
