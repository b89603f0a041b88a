package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrStateNotFound is returned when a state token is expired, already
// consumed, or was never issued. The three cases are deliberately
// indistinguishable to the caller.
var ErrStateNotFound = errors.New("auth state not found")

// AuthState is the one-time record binding a state token to its PKCE
// verifier and the path the user originally requested.
type AuthState struct {
	State        string
	CodeVerifier string
	Nonce        string
	RedirectPath string
	Consumed     bool
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// CreateAuthStateParams are the inputs for CreateAuthState. The verifier
// and nonce may arrive already encrypted; the store does not interpret them.
type CreateAuthStateParams struct {
	State        string
	CodeVerifier string
	Nonce        string
	RedirectPath string
	ExpiresAt    time.Time
}

// CreateAuthState persists a new one-time auth state.
func (q *Queries) CreateAuthState(ctx context.Context, p CreateAuthStateParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO auth_states (state, code_verifier, nonce, redirect_path, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.State, p.CodeVerifier, p.Nonce, p.RedirectPath, p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create auth state: %w", err)
	}
	return nil
}

// ConsumeAuthState atomically marks an unconsumed, unexpired state token as
// consumed and returns its record. The conditional UPDATE guarantees that a
// race between two concurrent consumers yields exactly one winner; the loser
// gets ErrStateNotFound.
func (q *Queries) ConsumeAuthState(ctx context.Context, state string) (AuthState, error) {
	var s AuthState
	err := q.db.QueryRow(ctx, `
		UPDATE auth_states
		SET consumed = TRUE
		WHERE state = $1 AND consumed = FALSE AND expires_at > now()
		RETURNING state, code_verifier, nonce, redirect_path, consumed, created_at, expires_at`,
		state).Scan(&s.State, &s.CodeVerifier, &s.Nonce, &s.RedirectPath, &s.Consumed, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AuthState{}, ErrStateNotFound
		}
		return AuthState{}, fmt.Errorf("consume auth state: %w", err)
	}
	return s, nil
}

// DeleteExpiredAuthStates removes states past expiry. Advisory cleanup only:
// ConsumeAuthState already enforces expiry at read time.
func (q *Queries) DeleteExpiredAuthStates(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM auth_states WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired auth states: %w", err)
	}
	return tag.RowsAffected(), nil
}
