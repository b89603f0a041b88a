// Package idp provides the OAuth2/OIDC client side of the sign-in flow:
// PKCE material, the authorization redirect URL, the code-for-token
// exchange, and identity resolution against the provider.
package idp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Config holds the configuration needed to create a provider client.
// When IssuerURL is set, endpoints are filled in via OIDC discovery;
// explicit URLs override discovered ones. Without an issuer, all three
// endpoint URLs must be provided and id_token verification is skipped.
type Config struct {
	IssuerURL        string
	AuthorizationURL string
	TokenURL         string
	UserinfoURL      string
	ClientID         string
	ClientSecret     string
	Scopes           []string
	RedirectURL      string
	RequestTimeout   time.Duration
}

// Provider is the configured identity provider client. It is constructed
// once at startup and shared by the handlers; there is no per-request
// re-initialization.
type Provider struct {
	oauth2Cfg   oauth2.Config
	verifier    *oidc.IDTokenVerifier
	userinfoURL string
	client      *http.Client
}

// New creates a provider client, performing OIDC discovery when an issuer
// URL is configured.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	client := &http.Client{Timeout: cfg.RequestTimeout}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	var (
		endpoint    oauth2.Endpoint
		verifier    *oidc.IDTokenVerifier
		userinfoURL = cfg.UserinfoURL
	)

	if cfg.IssuerURL != "" {
		discoveryCtx := oidc.ClientContext(ctx, client)
		provider, err := oidc.NewProvider(discoveryCtx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery: %w", err)
		}
		endpoint = provider.Endpoint()
		verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})

		if userinfoURL == "" {
			var claims struct {
				UserinfoEndpoint string `json:"userinfo_endpoint"`
			}
			if err := provider.Claims(&claims); err == nil {
				userinfoURL = claims.UserinfoEndpoint
			}
		}
	}

	if cfg.AuthorizationURL != "" {
		endpoint.AuthURL = cfg.AuthorizationURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		return nil, fmt.Errorf("provider endpoints incomplete: set issuer_url or explicit authorization/token URLs")
	}
	if userinfoURL == "" {
		return nil, fmt.Errorf("provider userinfo endpoint not configured and not discoverable")
	}

	return &Provider{
		oauth2Cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
			RedirectURL:  cfg.RedirectURL,
		},
		verifier:    verifier,
		userinfoURL: userinfoURL,
		client:      client,
	}, nil
}

// AuthCodeURL generates the authorization redirect URL with PKCE and nonce.
// The redirect_uri embedded here must byte-match the one sent during the
// later code exchange; both come from the same oauth2.Config.
func (p *Provider) AuthCodeURL(state, nonce, codeVerifier string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(codeVerifier),
	}
	if nonce != "" {
		opts = append(opts, oidc.Nonce(nonce))
	}
	return p.oauth2Cfg.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges an authorization code for tokens. Authorization
// codes are single-use; a failed exchange is never retried.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.oauth2Cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, newExchangeError(err)
	}
	return token, nil
}
