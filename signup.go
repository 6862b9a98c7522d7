package incognito

import (
	"net/http"
)

// HandleSignup processes user registration. A successful registration logs
// the user in through HandleUser.
func (a *LocalAuth) HandleSignup(w http.ResponseWriter, r *http.Request) {
	creds, authErr := a.parseForm(r)
	if authErr != nil {
		a.handleSignupError(authErr, w, r)
		return
	}

	user, err := a.Register(r.Context(), creds.Username, creds.Password)
	if err != nil {
		a.handleSignupError(AsAuthError(err), w, r)
		return
	}
	a.HandleUser("local", "local", user, w, r)
}

// handleSignupError uses the configured handler or redirects back to the registration page
func (a *LocalAuth) handleSignupError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	logAuthError("signup", err)
	if a.OnSignupError != nil && a.OnSignupError(err, w, r) {
		return
	}
	http.Redirect(w, r, a.getSignupURL(), http.StatusFound)
}
