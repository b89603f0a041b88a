// Package account materializes local accounts from provider identities.
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/perchmarket/perch/server/internal/idp"
	"github.com/perchmarket/perch/server/internal/store"
)

// ErrAccountConflict is returned when an identity would re-link an account
// that already belongs to a different provider subject, or when a known
// subject presents account-identifying fields that no longer match. Never
// resolved automatically; an operator has to untangle it.
var ErrAccountConflict = errors.New("identity conflicts with an existing account link")

// Result is the outcome of materializing an identity.
type Result struct {
	Account store.Account
	IsNew   bool
}

// Materializer looks up or creates the local account for a verified
// provider identity.
type Materializer struct {
	store *store.Store
}

// NewMaterializer creates a new account materializer.
func NewMaterializer(st *store.Store) *Materializer {
	return &Materializer{store: st}
}

// Materialize resolves an identity to exactly one local account:
//  1. Lookup by provider subject. Found: verify the email still matches,
//     refresh volatile fields, done.
//  2. Lookup by email (row-locked). Found without a subject: backfill it
//     (first provider wins). Found with a different subject: conflict.
//  3. Otherwise create a fresh account with completion flags unset.
//
// The whole decision runs in one transaction, so a login abandoned
// mid-callback never leaves a half-created account and concurrent
// callbacks for the same identity serialize on the email row.
func (m *Materializer) Materialize(ctx context.Context, identity *idp.Identity) (Result, error) {
	var res Result
	err := m.store.WithTx(ctx, func(q *store.Queries) error {
		acct, err := q.GetAccountBySubject(ctx, identity.Subject)
		if err == nil {
			if acct.Email != identity.Email {
				return fmt.Errorf("subject %s presents email %s, account has %s: %w",
					identity.Subject, identity.Email, acct.Email, ErrAccountConflict)
			}
			res.Account, err = m.refresh(ctx, q, acct.ID, identity)
			return err
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lookup account by subject: %w", err)
		}

		acct, err = q.GetAccountByEmailForUpdate(ctx, identity.Email)
		if err == nil {
			if acct.ProviderSubjectID != "" && acct.ProviderSubjectID != identity.Subject {
				return fmt.Errorf("email %s already linked to another subject: %w",
					identity.Email, ErrAccountConflict)
			}
			if acct.ProviderSubjectID == "" {
				if err := q.LinkProviderSubject(ctx, acct.ID, identity.Subject); err != nil {
					return err
				}
			}
			res.Account, err = m.refresh(ctx, q, acct.ID, identity)
			return err
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lookup account by email: %w", err)
		}

		created, err := q.CreateAccount(ctx, store.CreateAccountParams{
			ID:                newULID(),
			Email:             identity.Email,
			DisplayName:       identity.Name,
			AvatarURL:         identity.AvatarURL,
			ProviderSubjectID: identity.Subject,
			EmailVerified:     identity.EmailVerified,
		})
		if err != nil {
			return err
		}
		res.Account = created
		res.IsNew = true
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// refresh updates the volatile fields on every login and returns the
// post-update record.
func (m *Materializer) refresh(ctx context.Context, q *store.Queries, id string, identity *idp.Identity) (store.Account, error) {
	if err := q.TouchAccountLogin(ctx, id, identity.Name, identity.AvatarURL); err != nil {
		return store.Account{}, err
	}
	acct, err := q.GetAccountByID(ctx, id)
	if err != nil {
		return store.Account{}, fmt.Errorf("reload account: %w", err)
	}
	return acct, nil
}

func newULID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
