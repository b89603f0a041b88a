// Package testutil provides shared test helpers for integration tests.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/perchmarket/perch/server/internal/auth"
	"github.com/perchmarket/perch/server/internal/crypto"
	"github.com/perchmarket/perch/server/internal/store"
)

var entropy = ulid.Monotonic(rand.Reader, 0)

// NewID generates a unique ULID for test isolation.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// SetupPostgres starts a PostgreSQL testcontainer and returns a connected Store.
// The container is stopped when the test completes.
func SetupPostgres(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("perch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	st, err := store.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return st
}

// CreateTestAccount creates an account and returns it. Completion fields
// stay unset; use CompleteTestAccount for a fully onboarded account.
func CreateTestAccount(t *testing.T, st *store.Store, email, subject string) store.Account {
	t.Helper()

	acct, err := st.Queries().CreateAccount(context.Background(), store.CreateAccountParams{
		ID:                NewID(),
		Email:             email,
		DisplayName:       "Test User",
		ProviderSubjectID: subject,
		EmailVerified:     true,
	})
	if err != nil {
		t.Fatalf("create test account: %v", err)
	}
	return acct
}

// CompleteTestAccount creates an account with all onboarding fields set.
func CompleteTestAccount(t *testing.T, st *store.Store, email, subject, role string) store.Account {
	t.Helper()

	acct := CreateTestAccount(t, st, email, subject)
	business := ""
	if role == store.RoleSeller {
		business = "Test Goods Co"
	}
	acct, err := st.Queries().UpdateAccountProfile(context.Background(), store.UpdateAccountProfileParams{
		ID:           acct.ID,
		DisplayName:  acct.DisplayName,
		Role:         role,
		BusinessName: business,
	})
	if err != nil {
		t.Fatalf("complete test account: %v", err)
	}
	return acct
}

// NewSessionManager creates a SessionManager with test-friendly configuration.
func NewSessionManager() *auth.SessionManager {
	return auth.NewSessionManager(auth.SessionConfig{
		Secret: []byte("test-secret-key-for-session-signing"),
		TTL:    time.Hour,
		Issuer: "perch-test",
	})
}

// NewEncryptor creates an Encryptor with a random key.
func NewEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()

	key, err := crypto.RandomBytes(32)
	if err != nil {
		t.Fatalf("generate encryption key: %v", err)
	}
	enc, err := crypto.NewEncryptor(hex.EncodeToString(key))
	if err != nil {
		t.Fatalf("create encryptor: %v", err)
	}
	return enc
}
