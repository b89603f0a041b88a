package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Role values for accounts. The empty role means onboarding has not
// reached role selection yet.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Account is the local account record keyed by email. ProviderSubjectID is
// empty until the first SSO login backfills it.
type Account struct {
	ID                string
	Email             string
	DisplayName       string
	AvatarURL         string
	ProviderSubjectID string
	EmailVerified     bool
	Role              string
	BusinessName      string
	ProfileCompleted  bool
	CreatedAt         time.Time
	LastLoginAt       time.Time
}

const accountColumns = `id, email, display_name, avatar_url, COALESCE(provider_subject_id, ''),
	email_verified, role, business_name, profile_completed, created_at, last_login_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (Account, error) {
	var (
		a         Account
		lastLogin pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.AvatarURL, &a.ProviderSubjectID,
		&a.EmailVerified, &a.Role, &a.BusinessName, &a.ProfileCompleted, &a.CreatedAt, &lastLogin)
	if err != nil {
		return Account{}, err
	}
	if lastLogin.Valid {
		a.LastLoginAt = lastLogin.Time
	}
	return a, nil
}

// GetAccountByID fetches an account by primary key. Returns pgx.ErrNoRows
// when absent.
func (q *Queries) GetAccountByID(ctx context.Context, id string) (Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetAccountBySubject fetches an account by provider subject id.
func (q *Queries) GetAccountBySubject(ctx context.Context, subject string) (Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE provider_subject_id = $1`, subject)
	return scanAccount(row)
}

// GetAccountByEmail fetches an account by email.
func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// GetAccountByEmailForUpdate fetches an account by email with a row lock.
// Used inside the materializer transaction so concurrent callbacks for the
// same identity serialize instead of double-writing.
func (q *Queries) GetAccountByEmailForUpdate(ctx context.Context, email string) (Account, error) {
	row := q.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 FOR UPDATE`, email)
	return scanAccount(row)
}

// CreateAccountParams are the inputs for CreateAccount.
type CreateAccountParams struct {
	ID                string
	Email             string
	DisplayName       string
	AvatarURL         string
	ProviderSubjectID string
	EmailVerified     bool
}

// CreateAccount inserts a new account with completion flags unset.
func (q *Queries) CreateAccount(ctx context.Context, p CreateAccountParams) (Account, error) {
	var subject any
	if p.ProviderSubjectID != "" {
		subject = p.ProviderSubjectID
	}
	row := q.db.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, avatar_url, provider_subject_id, email_verified, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING `+accountColumns,
		p.ID, p.Email, p.DisplayName, p.AvatarURL, subject, p.EmailVerified)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// LinkProviderSubject backfills the provider subject on an account that has
// none yet. The WHERE clause refuses to overwrite an existing link.
func (q *Queries) LinkProviderSubject(ctx context.Context, id, subject string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE accounts SET provider_subject_id = $2
		WHERE id = $1 AND provider_subject_id IS NULL`,
		id, subject)
	if err != nil {
		return fmt.Errorf("link provider subject: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("link provider subject: account %s already linked", id)
	}
	return nil
}

// TouchAccountLogin updates the volatile fields refreshed on every login.
// Display name is only backfilled when currently empty; the avatar always
// follows the provider.
func (q *Queries) TouchAccountLogin(ctx context.Context, id, displayName, avatarURL string) error {
	_, err := q.db.Exec(ctx, `
		UPDATE accounts
		SET display_name = CASE WHEN display_name = '' THEN $2 ELSE display_name END,
		    avatar_url = $3,
		    last_login_at = now()
		WHERE id = $1`,
		id, displayName, avatarURL)
	if err != nil {
		return fmt.Errorf("touch account login: %w", err)
	}
	return nil
}

// SetAccountRole records the chosen marketplace role. Sellers carry a
// business name; for buyers it is cleared.
func (q *Queries) SetAccountRole(ctx context.Context, id, role, businessName string) (Account, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE accounts
		SET role = $2, business_name = $3
		WHERE id = $1
		RETURNING `+accountColumns,
		id, role, businessName)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("set account role: %w", err)
	}
	return a, nil
}

// UpdateAccountProfileParams are the onboarding profile fields.
type UpdateAccountProfileParams struct {
	ID           string
	DisplayName  string
	Role         string
	BusinessName string
}

// UpdateAccountProfile sets the onboarding completion fields.
func (q *Queries) UpdateAccountProfile(ctx context.Context, p UpdateAccountProfileParams) (Account, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE accounts
		SET display_name = $2, role = $3, business_name = $4, profile_completed = TRUE
		WHERE id = $1
		RETURNING `+accountColumns,
		p.ID, p.DisplayName, p.Role, p.BusinessName)
	a, err := scanAccount(row)
	if err != nil {
		return Account{}, fmt.Errorf("update account profile: %w", err)
	}
	return a, nil
}
