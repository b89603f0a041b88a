package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchmarket/perch/server/internal/auth"
	"github.com/perchmarket/perch/server/internal/store"
	"github.com/perchmarket/perch/server/internal/testutil"
)

func (env *testEnv) submitForm(t *testing.T, token, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func TestOnboarding_BuyerFlow(t *testing.T) {
	env := setupService(t, nil)
	acct := testutil.CreateTestAccount(t, env.st, "buyer@example.com", "subject-20")
	session, err := env.sessions.Issue(acct.ID, acct.Email)
	require.NoError(t, err)

	rec := env.submitForm(t, session.Token, "/onboarding/profile",
		url.Values{"display_name": {"Ben"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/onboarding/role", rec.Header().Get("Location"))

	rec = env.submitForm(t, session.Token, "/onboarding/role",
		url.Values{"role": {"buyer"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	updated, err := env.st.Queries().GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ben", updated.DisplayName)
	assert.Equal(t, store.RoleBuyer, updated.Role)
	assert.True(t, updated.ProfileCompleted)
}

func TestOnboarding_SellerNeedsBusinessName(t *testing.T) {
	env := setupService(t, nil)
	acct := testutil.CreateTestAccount(t, env.st, "seller@example.com", "subject-21")
	session, err := env.sessions.Issue(acct.ID, acct.Email)
	require.NoError(t, err)

	rec := env.submitForm(t, session.Token, "/onboarding/profile",
		url.Values{"display_name": {"Sal"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.submitForm(t, session.Token, "/onboarding/role",
		url.Values{"role": {"seller"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.submitForm(t, session.Token, "/onboarding/role",
		url.Values{"role": {"seller"}, "business_name": {"Sal's Salvage"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	updated, err := env.st.Queries().GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RoleSeller, updated.Role)
	assert.Equal(t, "Sal's Salvage", updated.BusinessName)
}

func TestOnboarding_ProfileRequiresDisplayName(t *testing.T) {
	env := setupService(t, nil)
	acct := testutil.CreateTestAccount(t, env.st, "noname@example.com", "subject-22")
	session, err := env.sessions.Issue(acct.ID, acct.Email)
	require.NoError(t, err)

	rec := env.submitForm(t, session.Token, "/onboarding/profile",
		url.Values{"display_name": {"  "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnboarding_InvalidRoleRejected(t *testing.T) {
	env := setupService(t, nil)
	acct := testutil.CreateTestAccount(t, env.st, "odd@example.com", "subject-23")
	session, err := env.sessions.Issue(acct.ID, acct.Email)
	require.NoError(t, err)

	rec := env.submitForm(t, session.Token, "/onboarding/profile",
		url.Values{"display_name": {"Odd"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = env.submitForm(t, session.Token, "/onboarding/role",
		url.Values{"role": {"admin"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOnboarding_WithoutSession(t *testing.T) {
	env := setupService(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/onboarding/profile",
		strings.NewReader("display_name=Eve"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)
}
