package idp

import (
	"fmt"

	"github.com/perchmarket/perch/server/internal/crypto"
)

// GenerateState creates a cryptographically random state parameter that binds
// an authorization request to its callback.
func GenerateState() (string, error) {
	b, err := crypto.RandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return crypto.EncodeBase64URL(b), nil
}

// GenerateNonce creates a cryptographically random nonce for id_token validation.
func GenerateNonce() (string, error) {
	b, err := crypto.RandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return crypto.EncodeBase64URL(b), nil
}

// GenerateCodeVerifier creates a PKCE code verifier (43-128 chars, unreserved chars).
func GenerateCodeVerifier() (string, error) {
	b, err := crypto.RandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate code verifier: %w", err)
	}
	return crypto.EncodeBase64URL(b), nil
}

// CodeChallengeS256 computes the S256 PKCE code challenge from a code verifier.
func CodeChallengeS256(verifier string) string {
	return crypto.EncodeBase64URL(crypto.SHA256([]byte(verifier)))
}
