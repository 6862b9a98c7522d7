package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleUserInfoURL is the OpenID userinfo endpoint; it reports the account id as "sub".
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

type GoogleOAuth2 struct {
	*BaseOAuth2

	// UserInfoURL is the URL to fetch the profile from. Can be overridden for testing.
	UserInfoURL string
}

// NewGoogleOAuth2 configures the Google authorization-code flow. Only the
// "profile" scope is requested.
func NewGoogleOAuth2(clientId, clientSecret, callbackUrl string) *GoogleOAuth2 {
	return &GoogleOAuth2{
		BaseOAuth2:  NewBaseOAuth2(clientId, clientSecret, callbackUrl, google.Endpoint, "profile"),
		UserInfoURL: GoogleUserInfoURL,
	}
}

// HandleCallback finishes the flow started by HandleLogin. Every failure is
// routed to HandleFailure; nothing is handed to HandleUser unless the state,
// the code exchange and the profile fetch all succeed.
func (g *GoogleOAuth2) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if g.States == nil {
		g.fail("google", ErrNotConfigured, w, r)
		return
	}

	// Always consume the pending state, even when the provider reports an error.
	stateErr := g.States.Consume(r.Context(), r.FormValue("state"))
	if e := r.FormValue("error"); e != "" {
		g.fail("google", fmt.Errorf("%w: %s", ErrProviderDenied, e), w, r)
		return
	}
	if stateErr != nil {
		g.fail("google", stateErr, w, r)
		return
	}

	code := r.FormValue("code")
	if code == "" {
		g.fail("google", ErrMissingCode, w, r)
		return
	}

	ctx, cancel := g.providerContext(r.Context())
	defer cancel()

	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		g.fail("google", fmt.Errorf("%w: %v", ErrExchangeFailed, err), w, r)
		return
	}

	profile, err := g.FetchProfile(ctx, token)
	if err != nil {
		g.fail("google", err, w, r)
		return
	}
	g.HandleUser("google", token, profile, w, r)
}

// FetchProfile reads the account profile with the given access token.
func (g *GoogleOAuth2) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	resp, err := g.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("google userinfo returned %d: %s", resp.StatusCode, body)
		return nil, fmt.Errorf("%w: status %d", ErrProfileFailed, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileFailed, err)
	}
	return profileFromUserInfo(raw)
}

// profileFromUserInfo accepts both the v3 ("sub") and v2 ("id") userinfo shapes.
func profileFromUserInfo(raw map[string]any) (*Profile, error) {
	id := stringField(raw, "sub")
	if id == "" {
		id = stringField(raw, "id")
	}
	if id == "" {
		return nil, ErrMissingAccount
	}
	return &Profile{
		ID:      id,
		Name:    stringField(raw, "name"),
		Picture: stringField(raw, "picture"),
		Raw:     raw,
	}, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	}
	return ""
}

func (g *GoogleOAuth2) userInfoURL() string {
	if g.UserInfoURL != "" {
		return g.UserInfoURL
	}
	return GoogleUserInfoURL
}
