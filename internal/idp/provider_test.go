package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal PKCE-compliant token + userinfo endpoint.
type fakeProvider struct {
	t *testing.T

	// expected code exchange inputs
	code      string
	challenge string

	tokenStatus int
	tokenBody   map[string]any

	userinfoStatus int
	userinfoBody   map[string]any

	lastTokenForm url.Values
}

func (f *fakeProvider) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		f.lastTokenForm = r.PostForm

		// Validate the verifier against the challenge from the auth request,
		// the way a PKCE-compliant provider would.
		if f.challenge != "" {
			verifier := r.PostForm.Get("code_verifier")
			if CodeChallengeS256(verifier) != f.challenge {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]any{
					"error":             "invalid_grant",
					"error_description": "code verifier does not match challenge",
				})
				return
			}
		}
		if f.code != "" && r.PostForm.Get("code") != f.code {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
			return
		}

		status := f.tokenStatus
		if status == 0 {
			status = http.StatusOK
		}
		body := f.tokenBody
		if body == nil {
			body = map[string]any{
				"access_token": "at-123",
				"token_type":   "Bearer",
				"expires_in":   3600,
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "Bearer at-123", r.Header.Get("Authorization"))

		status := f.userinfoStatus
		if status == 0 {
			status = http.StatusOK
		}
		body := f.userinfoBody
		if body == nil {
			body = map[string]any{
				"sub":            "subject-1",
				"email":          "a@b.com",
				"email_verified": true,
				"name":           "Ada",
				"picture":        "https://img.example.com/ada.png",
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	})
	return httptest.NewServer(mux)
}

func newTestProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := New(context.Background(), Config{
		AuthorizationURL: srv.URL + "/authorize",
		TokenURL:         srv.URL + "/token",
		UserinfoURL:      srv.URL + "/userinfo",
		ClientID:         "client-1",
		ClientSecret:     "secret-1",
		RedirectURL:      "https://perch.example.com/auth/callback",
	})
	require.NoError(t, err)
	return p
}

func TestNew_IncompleteEndpoints(t *testing.T) {
	_, err := New(context.Background(), Config{
		ClientID:    "client-1",
		RedirectURL: "https://perch.example.com/auth/callback",
	})
	assert.Error(t, err)
}

func TestAuthCodeURL_Parameters(t *testing.T) {
	fake := &fakeProvider{t: t}
	srv := fake.server()
	defer srv.Close()
	p := newTestProvider(t, srv)

	verifier, err := GenerateCodeVerifier()
	require.NoError(t, err)

	raw := p.AuthCodeURL("state-xyz", "nonce-abc", verifier)
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, "https://perch.example.com/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "state-xyz", q.Get("state"))
	assert.Equal(t, "nonce-abc", q.Get("nonce"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, CodeChallengeS256(verifier), q.Get("code_challenge"))
	assert.Contains(t, q.Get("scope"), "openid")
}

func TestExchangeCode_SendsVerifierAndRedirectURI(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	require.NoError(t, err)

	fake := &fakeProvider{t: t, code: "abc", challenge: CodeChallengeS256(verifier)}
	srv := fake.server()
	defer srv.Close()
	p := newTestProvider(t, srv)

	token, err := p.ExchangeCode(context.Background(), "abc", verifier)
	require.NoError(t, err)
	assert.Equal(t, "at-123", token.AccessToken)

	form := fake.lastTokenForm
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "abc", form.Get("code"))
	assert.Equal(t, verifier, form.Get("code_verifier"))
	assert.Equal(t, "https://perch.example.com/auth/callback", form.Get("redirect_uri"))
}

func TestExchangeCode_WrongVerifierRejected(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	require.NoError(t, err)

	fake := &fakeProvider{t: t, code: "abc", challenge: CodeChallengeS256(verifier)}
	srv := fake.server()
	defer srv.Close()
	p := newTestProvider(t, srv)

	wrong, err := GenerateCodeVerifier()
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "abc", wrong)
	require.Error(t, err)

	var ee *ExchangeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "invalid_grant", ee.Code)
	assert.Equal(t, "code verifier does not match challenge", ee.Description)
	assert.Equal(t, http.StatusBadRequest, ee.StatusCode)
}

func TestExchangeCode_ProviderError(t *testing.T) {
	fake := &fakeProvider{
		t:           t,
		tokenStatus: http.StatusUnauthorized,
		tokenBody: map[string]any{
			"error":             "invalid_client",
			"error_description": "client authentication failed",
		},
	}
	srv := fake.server()
	defer srv.Close()
	p := newTestProvider(t, srv)

	_, err := p.ExchangeCode(context.Background(), "abc", "verifier")
	require.Error(t, err)

	var ee *ExchangeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "invalid_client", ee.Code)
	assert.Contains(t, ee.Error(), "invalid_client")
}

func TestResolveIdentity_Userinfo(t *testing.T) {
	fake := &fakeProvider{t: t}
	srv := fake.server()
	defer srv.Close()
	p := newTestProvider(t, srv)

	token, err := p.ExchangeCode(context.Background(), "", "verifier")
	require.NoError(t, err)

	id, err := p.ResolveIdentity(context.Background(), token, "")
	require.NoError(t, err)
	assert.Equal(t, "subject-1", id.Subject)
	assert.Equal(t, "a@b.com", id.Email)
	assert.Equal(t, "Ada", id.Name)
	assert.Equal(t, "https://img.example.com/ada.png", id.AvatarURL)
	assert.True(t, id.EmailVerified)
}

func TestResolveIdentity_MissingEmail(t *testing.T) {
	fake := &fakeProvider{
		t:            t,
		userinfoBody: map[string]any{"sub": "subject-1", "name": "Ada"},
	}
	srv := fake.server()
	defer srv.Close()
	p := newTestProvider(t, srv)

	token, err := p.ExchangeCode(context.Background(), "", "verifier")
	require.NoError(t, err)

	_, err = p.ResolveIdentity(context.Background(), token, "")
	require.Error(t, err)

	var ie *IdentityError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Error(), "missing email")
}

func TestResolveIdentity_UserinfoFailure(t *testing.T) {
	fake := &fakeProvider{t: t, userinfoStatus: http.StatusInternalServerError}
	srv := fake.server()
	defer srv.Close()
	p := newTestProvider(t, srv)

	token, err := p.ExchangeCode(context.Background(), "", "verifier")
	require.NoError(t, err)

	_, err = p.ResolveIdentity(context.Background(), token, "")
	require.Error(t, err)

	var ie *IdentityError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, ie.Error(), "status 500")
}
