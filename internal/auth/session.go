// Package auth provides session issuance and validation for the server.
// Sessions are self-contained signed tokens: validating one never calls
// out to the identity provider.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// ErrSessionInvalid is returned for a missing, expired, or tampered
// session token.
var ErrSessionInvalid = errors.New("session invalid")

// SessionClaims are the JWT claims carried by a session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid"`
	Email     string `json:"email"`
}

// SessionConfig holds session token configuration.
type SessionConfig struct {
	Secret []byte
	// TTL is the fixed session lifetime. Sessions do not slide: a login is
	// good for exactly this long, independent of provider token lifetime.
	TTL    time.Duration
	Issuer string
}

// SessionManager signs and validates session tokens.
type SessionManager struct {
	config SessionConfig
}

// NewSessionManager creates a new session manager.
func NewSessionManager(config SessionConfig) *SessionManager {
	if config.TTL == 0 {
		config.TTL = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "perch"
	}
	return &SessionManager{config: config}
}

// TTL returns the configured session lifetime.
func (m *SessionManager) TTL() time.Duration {
	return m.config.TTL
}

// Session is an issued session credential.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Issue creates a signed session token for an account.
func (m *SessionManager) Issue(accountID, email string) (*Session, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.TTL)
	entropy := ulid.Monotonic(rand.Reader, 0)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.MustNew(ulid.Timestamp(now), entropy).String(),
			Issuer:    m.config.Issuer,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		AccountID: accountID,
		Email:     email,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

// Validate parses and verifies a session token and returns its claims.
// All failure modes collapse into ErrSessionInvalid; the parse detail is
// wrapped for logs only.
func (m *SessionManager) Validate(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, ErrSessionInvalid
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return nil, ErrSessionInvalid
	}

	return claims, nil
}
