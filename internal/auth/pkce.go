package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/LunaSea00/tg-twitter-sync/internal/models"
)

// X OAuth2 endpoints and the scopes the bridge needs. offline.access is
// what yields a refresh token.
const (
	AuthURL  = "https://twitter.com/i/oauth2/authorize"
	TokenURL = "https://api.twitter.com/2/oauth2/token"
)

var Scopes = []string{"tweet.read", "tweet.write", "users.read", "dm.read", "dm.write", "offline.access"}

// PKCEFlow drives the authorization-code-with-PKCE exchange used by the
// authorize command to mint the initial user token.
type PKCEFlow struct {
	cfg      oauth2.Config
	verifier string
	state    string
}

// NewPKCEFlow creates a flow for the given app client id and local
// redirect URL. A fresh verifier and state are generated per flow.
func NewPKCEFlow(clientID, clientSecret, redirectURL string) *PKCEFlow {
	return &PKCEFlow{
		cfg: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  AuthURL,
				TokenURL: TokenURL,
			},
		},
		verifier: oauth2.GenerateVerifier(),
		state:    oauth2.GenerateVerifier(),
	}
}

// AuthURL returns the browser URL the user visits to grant access.
func (f *PKCEFlow) AuthURL() string {
	return f.cfg.AuthCodeURL(f.state, oauth2.S256ChallengeOption(f.verifier))
}

// State returns the CSRF state the callback must echo back.
func (f *PKCEFlow) State() string { return f.state }

// Exchange trades the callback code for a token pair.
func (f *PKCEFlow) Exchange(ctx context.Context, code string) (models.TokenPair, error) {
	tok, err := f.cfg.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("code exchange: %w", err)
	}
	pair := models.TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		pair.ExpiresAt = tok.Expiry.UTC()
	} else {
		// X access tokens live two hours; assume that when the library
		// reports no expiry.
		pair.ExpiresAt = time.Now().Add(2 * time.Hour).UTC()
	}
	return pair, nil
}
