package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSessionCookie_Development(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, &Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, false)

	res := w.Result()
	cookies := res.Cookies()
	require.Len(t, cookies, 1)

	c := cookies[0]
	assert.Equal(t, SessionCookie, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Greater(t, c.MaxAge, 0)
}

func TestSetSessionCookie_Secure(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, &Session{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, true)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
	// SameSite stays Lax over HTTPS too; a secure deployment must not relax
	// the cookie to ride cross-site form posts.
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
}

func TestClearSessionCookie_SecureStaysLax(t *testing.T) {
	w := httptest.NewRecorder()
	ClearSessionCookie(w, true)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
}

func TestClearSessionCookie(t *testing.T) {
	w := httptest.NewRecorder()
	ClearSessionCookie(w, false)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestSessionFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, SessionFromRequest(r))

	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"})
	assert.Equal(t, "tok", SessionFromRequest(r))
}

func TestIsSecureRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://perch.example.com/", nil)
	assert.False(t, IsSecureRequest(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, IsSecureRequest(r))

	r2 := httptest.NewRequest(http.MethodGet, "https://perch.example.com/", nil)
	assert.True(t, IsSecureRequest(r2))
}
