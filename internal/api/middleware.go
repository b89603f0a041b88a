package api

import (
	"net/http"

	"github.com/perchmarket/perch/server/internal/auth"
	"github.com/perchmarket/perch/server/internal/onboarding"
)

// RequireSession guards protected routes. It validates the session cookie,
// loads the account, and stores both on the request context. Requests
// without a valid session are redirected to sign-in with the original path
// preserved; API callers get a 401 instead. Validation is local to this
// process, the identity provider is never consulted.
//
// When the account's onboarding is incomplete and the request targets a
// different route than the pending step, the browser is redirected to that
// step. The decision is idempotent, so repeated evaluation of the same
// request can only ever produce the same redirect.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.sessions.Validate(auth.SessionFromRequest(r))
		if err != nil {
			h.denySession(w, r)
			return
		}

		acct, err := h.store.Queries().GetAccountByID(r.Context(), claims.AccountID)
		if err != nil {
			auth.ClearSessionCookie(w, auth.IsSecureRequest(r))
			h.denySession(w, r)
			return
		}

		if dest := onboarding.Destination(true, &acct); !onboarding.Complete(&acct) && dest != r.URL.Path {
			if wantsJSON(r) {
				writeJSON(w, http.StatusForbidden, map[string]any{
					"error":       "onboarding_incomplete",
					"destination": dest,
				})
				return
			}
			http.Redirect(w, r, dest, http.StatusFound)
			return
		}

		ctx := auth.WithSession(r.Context(), &auth.SessionContext{
			AccountID: acct.ID,
			Email:     acct.Email,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) denySession(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthenticated"})
		return
	}
	http.Redirect(w, r, onboarding.SignInURL(r.URL.Path), http.StatusFound)
}
