package oauth2

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds the code exchange and profile fetch together.
const DefaultTimeout = 10 * time.Second

var (
	ErrInvalidState   = errors.New("invalid oauth state")
	ErrProviderDenied = errors.New("provider denied the authorization request")
	ErrMissingCode    = errors.New("authorization code missing from callback")
	ErrExchangeFailed = errors.New("authorization code exchange failed")
	ErrProfileFailed  = errors.New("fetching provider profile failed")
	ErrMissingAccount = errors.New("provider profile has no account id")
	ErrNotConfigured  = errors.New("oauth provider not configured")
)

// Profile is the subset of the provider's account data we use.
type Profile struct {
	ID      string
	Name    string
	Picture string
	Raw     map[string]any
}

// HandleUserFunc receives the verified provider profile once the callback succeeds.
type HandleUserFunc func(provider string, token *oauth2.Token, profile *Profile, w http.ResponseWriter, r *http.Request)

// HandleFailureFunc is called for every callback that does not end in HandleUser.
type HandleFailureFunc func(provider string, err error, w http.ResponseWriter, r *http.Request)

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string

	HandleUser    HandleUserFunc
	HandleFailure HandleFailureFunc

	// States issues and consumes the pending state for each login attempt
	States *StateManager

	// Timeout for the provider round trips. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient is used to talk to the provider. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// FailureURL is where failed callbacks land when HandleFailure is nil
	FailureURL string

	oauthConfig oauth2.Config
}

func NewBaseOAuth2(clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes ...string) *BaseOAuth2 {
	return &BaseOAuth2{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		CallbackURL:  callbackUrl,
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
}

// Config returns the underlying oauth2 configuration.
func (b *BaseOAuth2) Config() *oauth2.Config {
	return &b.oauthConfig
}

// SetEndpoint points the flow at a different authorization server.
func (b *BaseOAuth2) SetEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// HandleLogin starts the authorization-code flow.
func (b *BaseOAuth2) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if b.States == nil {
		b.fail("", ErrNotConfigured, w, r)
		return
	}
	OauthRedirector(&b.oauthConfig, b.States)(w, r)
}

func (b *BaseOAuth2) timeout() time.Duration {
	if b.Timeout > 0 {
		return b.Timeout
	}
	return DefaultTimeout
}

func (b *BaseOAuth2) httpClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return &http.Client{Timeout: b.timeout()}
}

// providerContext bounds ctx by the provider timeout and makes the oauth2
// library use our HTTP client.
func (b *BaseOAuth2) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout())
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient()), cancel
}

func (b *BaseOAuth2) fail(provider string, err error, w http.ResponseWriter, r *http.Request) {
	if b.HandleFailure != nil {
		b.HandleFailure(provider, err, w, r)
		return
	}
	log.Printf("%s login failed: %v", provider, err)
	failureURL := b.FailureURL
	if failureURL == "" {
		failureURL = "/login"
	}
	http.Redirect(w, r, failureURL, http.StatusFound)
}
