package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Identity holds the authenticated subject's profile as reported by the
// provider. It is consumed exactly once, to materialize the local account.
type Identity struct {
	Subject       string
	Email         string
	Name          string
	AvatarURL     string
	EmailVerified bool
}

type profileClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
	Nonce         string `json:"nonce"`
}

// ResolveIdentity maps the token response to an Identity. When the provider
// was configured via discovery and the response carries an id_token, the
// token is verified (signature and nonce) and its claims are preferred;
// otherwise the userinfo endpoint is called with the access token.
func (p *Provider) ResolveIdentity(ctx context.Context, token *oauth2.Token, expectedNonce string) (*Identity, error) {
	if p.verifier != nil {
		if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
			id, err := p.identityFromIDToken(ctx, rawIDToken, expectedNonce)
			if err != nil {
				return nil, err
			}
			if id.Email != "" {
				return id, nil
			}
			// Some providers omit email from the id_token; fall through
			// to userinfo.
		}
	}
	return p.identityFromUserinfo(ctx, token)
}

func (p *Provider) identityFromIDToken(ctx context.Context, rawIDToken, expectedNonce string) (*Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &IdentityError{Reason: "verify id_token", err: err}
	}
	if idToken.Nonce != expectedNonce {
		return nil, &IdentityError{Reason: "nonce mismatch"}
	}

	var claims profileClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, &IdentityError{Reason: "extract id_token claims", err: err}
	}

	return &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		AvatarURL:     claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}

func (p *Provider) identityFromUserinfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userinfoURL, nil)
	if err != nil {
		return nil, &IdentityError{Reason: "build userinfo request", err: err}
	}
	token.SetAuthHeader(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &IdentityError{Reason: "userinfo request", err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &IdentityError{Reason: fmt.Sprintf("userinfo status %d", resp.StatusCode)}
	}

	var claims profileClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, &IdentityError{Reason: "decode userinfo payload", err: err}
	}
	if claims.Subject == "" {
		return nil, &IdentityError{Reason: "userinfo payload missing subject"}
	}
	if claims.Email == "" {
		return nil, &IdentityError{Reason: "userinfo payload missing email"}
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		AvatarURL:     claims.Picture,
		EmailVerified: claims.EmailVerified,
	}, nil
}
