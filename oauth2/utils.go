package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultStateTTL is how long a login attempt may take at the provider.
const DefaultStateTTL = 10 * time.Minute

const stateSessionKey = "oauthState"

// StateStore holds the pending nonce between the redirect and the callback.
// *scs.SessionManager satisfies it.
type StateStore interface {
	Put(ctx context.Context, key string, val any)
	PopString(ctx context.Context, key string) string
}

// StateManager issues the opaque state parameter for an authorization request.
// The state is an HS256 token carrying a nonce; the same nonce is parked in
// the user's session and removed on first use.
type StateManager struct {
	Key   []byte
	Store StateStore
	TTL   time.Duration
}

func NewStateManager(key []byte, store StateStore) *StateManager {
	return &StateManager{Key: key, Store: store, TTL: DefaultStateTTL}
}

func (s *StateManager) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultStateTTL
}

// Issue creates a new pending state, replacing any earlier one in the session.
func (s *StateManager) Issue(ctx context.Context) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        nonce,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl())),
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}
	s.Store.Put(ctx, stateSessionKey, nonce)
	return state, nil
}

// Consume validates state against the pending nonce. The pending nonce is
// removed whether or not validation succeeds, so a state is good for one
// callback at most.
func (s *StateManager) Consume(ctx context.Context, state string) error {
	pending := s.Store.PopString(ctx, stateSessionKey)
	if pending == "" || state == "" {
		return ErrInvalidState
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		return s.Key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if subtle.ConstantTimeCompare([]byte(claims.ID), []byte(pending)) != 1 {
		return ErrInvalidState
	}
	return nil
}

func randomNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// OauthRedirector returns a handler that records a pending state and sends
// the browser to the provider's consent page.
func OauthRedirector(oauthConfig *oauth2.Config, states *StateManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := states.Issue(r.Context())
		if err != nil {
			log.Println("Error issuing oauth state: ", err)
			http.Error(w, "Could not start login", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, oauthConfig.AuthCodeURL(state), http.StatusFound)
	}
}
