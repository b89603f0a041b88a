package auth

import (
	"net/http"
	"time"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "perch_session"

// SetSessionCookie attaches the session token to the response as an
// httpOnly cookie scoped to the whole site. SameSite is always Lax: the
// cookie rides top-level navigations (the provider redirect back to the
// callback) but never cross-site form posts, which keeps the onboarding
// submissions and logout off the CSRF surface. Secure is set when the
// request arrived over HTTPS (directly or via reverse proxy).
func SetSessionCookie(w http.ResponseWriter, session *Session, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
	})
}

// ClearSessionCookie removes the session cookie by expiring it immediately.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// SessionFromRequest extracts the session token from the request cookie.
// Returns "" when the cookie is absent.
func SessionFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// IsSecureRequest checks whether the request was made over HTTPS, directly
// or via a reverse proxy.
func IsSecureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
