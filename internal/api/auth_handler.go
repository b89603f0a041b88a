package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/perchmarket/perch/server/internal/account"
	"github.com/perchmarket/perch/server/internal/audit"
	"github.com/perchmarket/perch/server/internal/auth"
	"github.com/perchmarket/perch/server/internal/crypto"
	"github.com/perchmarket/perch/server/internal/idp"
	"github.com/perchmarket/perch/server/internal/onboarding"
	"github.com/perchmarket/perch/server/internal/store"
)

// Error codes surfaced to the browser on the error page. Provider detail
// never leaves the logs.
const (
	ErrCodeMissingParams       = "missing_params"
	ErrCodeInvalidState        = "invalid_state"
	ErrCodeTokenExchangeFailed = "token_exchange_failed"
	ErrCodeIdentityFetchFailed = "identity_fetch_failed"
	ErrCodeSigninFailed        = "signin_failed"
	ErrCodeUnexpected          = "unexpected_error"
)

const errorPage = "/auth/error"

// AuthHandler handles the browser-facing authentication flow.
type AuthHandler struct {
	store        *store.Store
	provider     *idp.Provider
	sessions     *auth.SessionManager
	materializer *account.Materializer
	enc          *crypto.Encryptor
	audit        *audit.Recorder
	limiter      *auth.RateLimiter
	logger       *slog.Logger
	stateTTL     time.Duration
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(st *store.Store, provider *idp.Provider, sessions *auth.SessionManager, enc *crypto.Encryptor, recorder *audit.Recorder, limiter *auth.RateLimiter, logger *slog.Logger, stateTTL time.Duration) *AuthHandler {
	if stateTTL == 0 {
		stateTTL = 10 * time.Minute
	}
	return &AuthHandler{
		store:        st,
		provider:     provider,
		sessions:     sessions,
		materializer: account.NewMaterializer(st),
		enc:          enc,
		audit:        recorder,
		limiter:      limiter,
		logger:       logger,
		stateTTL:     stateTTL,
	}
}

// Login starts the authorization flow: it persists a one-time state record
// and redirects the browser to the provider's authorization endpoint.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	// An already signed-in browser skips the provider round trip.
	if claims, err := h.sessions.Validate(auth.SessionFromRequest(r)); err == nil {
		acct, err := h.store.Queries().GetAccountByID(r.Context(), claims.AccountID)
		if err == nil {
			http.Redirect(w, r, onboarding.Destination(true, &acct), http.StatusFound)
			return
		}
	}

	next := r.URL.Query().Get("next")
	if !onboarding.SafeRedirectPath(next) {
		next = ""
	}

	state, err := idp.GenerateState()
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	nonce, err := idp.GenerateNonce()
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	verifier, err := idp.GenerateCodeVerifier()
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	// The verifier and nonce are stored encrypted when a key is configured;
	// the auth URL carries only the derived challenge.
	encVerifier, err := h.enc.Encrypt(verifier)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}
	encNonce, err := h.enc.Encrypt(nonce)
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	err = h.store.Queries().CreateAuthState(r.Context(), store.CreateAuthStateParams{
		State:        state,
		CodeVerifier: encVerifier,
		Nonce:        encNonce,
		RedirectPath: next,
		ExpiresAt:    time.Now().Add(h.stateTTL),
	})
	if err != nil {
		h.failLogin(w, r, err)
		return
	}

	h.logger.Info("auth flow started", "state_prefix", state[:8], "next", next)
	http.Redirect(w, r, h.provider.AuthCodeURL(state, nonce, verifier), http.StatusFound)
}

func (h *AuthHandler) failLogin(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("failed to start auth flow", "error", err)
	h.redirectError(w, r, ErrCodeUnexpected)
}

// Callback finishes the authorization flow. Every failure path records an
// audit event and ends in a redirect carrying a coarse error code.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	// Same per-IP budget as Login; without it the callback is an oracle for
	// guessing state tokens at full speed.
	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Warn("provider denied authorization", "error", providerErr, "description", q.Get("error_description"))
		h.recordFailure(ctx, r, "", "provider denied authorization: "+providerErr)
		h.redirectError(w, r, ErrCodeSigninFailed)
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		h.recordFailure(ctx, r, "", "callback missing code or state")
		h.redirectError(w, r, ErrCodeMissingParams)
		return
	}

	authState, err := h.store.Queries().ConsumeAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrStateNotFound) {
			statePrefix := state
			if len(statePrefix) > 8 {
				statePrefix = statePrefix[:8]
			}
			h.logger.Warn("auth state not found or expired", "state_prefix", statePrefix)
			h.recordFailure(ctx, r, "", "state invalid, expired, or replayed")
			h.redirectError(w, r, ErrCodeInvalidState)
			return
		}
		h.logger.Error("auth state lookup failed", "error", err)
		h.recordFailure(ctx, r, "", "state lookup failed")
		h.redirectError(w, r, ErrCodeUnexpected)
		return
	}

	verifier, err := h.enc.Decrypt(authState.CodeVerifier)
	if err != nil {
		h.logger.Error("failed to decrypt code verifier", "error", err)
		h.recordFailure(ctx, r, "", "verifier decrypt failed")
		h.redirectError(w, r, ErrCodeUnexpected)
		return
	}
	nonce, err := h.enc.Decrypt(authState.Nonce)
	if err != nil {
		h.logger.Error("failed to decrypt nonce", "error", err)
		h.recordFailure(ctx, r, "", "nonce decrypt failed")
		h.redirectError(w, r, ErrCodeUnexpected)
		return
	}

	token, err := h.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		var ee *idp.ExchangeError
		if errors.As(err, &ee) {
			h.logger.Warn("token exchange rejected", "status", ee.StatusCode, "code", ee.Code, "description", ee.Description)
		} else {
			h.logger.Error("token exchange failed", "error", err)
		}
		h.recordFailure(ctx, r, "", "token exchange failed")
		h.redirectError(w, r, ErrCodeTokenExchangeFailed)
		return
	}

	identity, err := h.provider.ResolveIdentity(ctx, token, nonce)
	if err != nil {
		h.logger.Warn("identity resolution failed", "error", err)
		h.recordFailure(ctx, r, "", "identity fetch failed")
		h.redirectError(w, r, ErrCodeIdentityFetchFailed)
		return
	}

	result, err := h.materializer.Materialize(ctx, identity)
	if err != nil {
		if errors.Is(err, account.ErrAccountConflict) {
			h.logger.Warn("account link conflict", "subject", identity.Subject, "email", identity.Email)
			// The account under attack is known here; attribute the failure
			// to it so repeated conflicts trip the suspicion heuristic.
			conflictID := ""
			if existing, lookupErr := h.store.Queries().GetAccountBySubject(ctx, identity.Subject); lookupErr == nil {
				conflictID = existing.ID
			} else if existing, lookupErr := h.store.Queries().GetAccountByEmail(ctx, identity.Email); lookupErr == nil {
				conflictID = existing.ID
			}
			h.recordFailure(ctx, r, conflictID, "account link conflict")
			h.redirectError(w, r, ErrCodeSigninFailed)
			return
		}
		h.logger.Error("account materialization failed", "error", err)
		h.recordFailure(ctx, r, "", "account materialization failed")
		h.redirectError(w, r, ErrCodeUnexpected)
		return
	}
	acct := result.Account

	session, err := h.sessions.Issue(acct.ID, acct.Email)
	if err != nil {
		h.logger.Error("failed to issue session", "error", err, "account_id", acct.ID)
		h.recordFailure(ctx, r, acct.ID, "session issuance failed")
		h.redirectError(w, r, ErrCodeUnexpected)
		return
	}
	auth.SetSessionCookie(w, session, auth.IsSecureRequest(r))

	h.audit.Record(ctx, store.AuditEvent{
		EventType: store.AuditSignin,
		AccountID: acct.ID,
		Success:   true,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	h.logger.Info("signin complete", "account_id", acct.ID, "new_account", result.IsNew)

	dest := onboarding.Destination(true, &acct)
	if dest == onboarding.RouteDashboard && onboarding.SafeRedirectPath(authState.RedirectPath) {
		dest = authState.RedirectPath
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// Logout clears the session cookie and records the signout. An invalid or
// absent session still clears the cookie; logout never fails.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, err := h.sessions.Validate(auth.SessionFromRequest(r)); err == nil {
		h.audit.Record(r.Context(), store.AuditEvent{
			EventType: store.AuditSignout,
			AccountID: claims.AccountID,
			Success:   true,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
	}
	auth.ClearSessionCookie(w, auth.IsSecureRequest(r))
	http.Redirect(w, r, onboarding.RouteSignIn, http.StatusFound)
}

// Session reports the signed-in account and its onboarding destination.
// The check is purely local: no provider call is ever made here.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, err := h.sessions.Validate(auth.SessionFromRequest(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"authenticated": false,
			"destination":   onboarding.RouteSignIn,
		})
		return
	}

	acct, err := h.store.Queries().GetAccountByID(r.Context(), claims.AccountID)
	if err != nil {
		// The account vanished out from under a live session.
		auth.ClearSessionCookie(w, auth.IsSecureRequest(r))
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"authenticated": false,
			"destination":   onboarding.RouteSignIn,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"account_id":    acct.ID,
		"email":         acct.Email,
		"display_name":  acct.DisplayName,
		"role":          acct.Role,
		"complete":      onboarding.Complete(&acct),
		"destination":   onboarding.Destination(true, &acct),
		"expires_at":    claims.ExpiresAt.Time.UTC(),
	})
}

// Error renders the terminal error page for a failed signin attempt. Only
// the coarse error code is available here; everything else stayed in logs.
func (h *AuthHandler) Error(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("error")
	switch code {
	case ErrCodeMissingParams, ErrCodeInvalidState, ErrCodeTokenExchangeFailed,
		ErrCodeIdentityFetchFailed, ErrCodeSigninFailed:
	default:
		code = ErrCodeUnexpected
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":       code,
			"destination": onboarding.RouteSignIn,
		})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, "<!doctype html><title>Sign-in failed</title><h1>Sign-in failed</h1><p>Code: %s</p><p><a href=%q>Try again</a></p>", code, onboarding.RouteSignIn)
}

// recordFailure appends a failure audit event and runs suspicion detection
// for the source address.
func (h *AuthHandler) recordFailure(ctx context.Context, r *http.Request, accountID, msg string) {
	ip := clientIP(r)
	h.audit.Record(ctx, store.AuditEvent{
		EventType:    store.AuditFailure,
		AccountID:    accountID,
		Success:      false,
		IP:           ip,
		UserAgent:    r.UserAgent(),
		ErrorMessage: msg,
	})
	h.audit.DetectSuspicious(ctx, accountID, ip, r.UserAgent())
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, errorPage+"?error="+url.QueryEscape(code), http.StatusFound)
}

// clientIP returns the originating address, preferring the proxy header.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
