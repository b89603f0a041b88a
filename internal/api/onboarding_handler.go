package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/perchmarket/perch/server/internal/auth"
	"github.com/perchmarket/perch/server/internal/onboarding"
	"github.com/perchmarket/perch/server/internal/store"
)

// OnboardingHandler handles the post-signin profile and role steps.
type OnboardingHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewOnboardingHandler creates a new onboarding handler.
func NewOnboardingHandler(st *store.Store, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{store: st, logger: logger}
}

// SubmitProfile records the profile form. The current role is preserved so
// a seller editing their profile later does not lose role state.
func (h *OnboardingHandler) SubmitProfile(w http.ResponseWriter, r *http.Request) {
	sc, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthenticated"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed form"})
		return
	}

	displayName := strings.TrimSpace(r.PostFormValue("display_name"))
	if displayName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "display_name is required"})
		return
	}
	businessName := strings.TrimSpace(r.PostFormValue("business_name"))

	acct, err := h.store.Queries().GetAccountByID(r.Context(), sc.AccountID)
	if err != nil {
		h.logger.Error("failed to load account for profile update", "error", err, "account_id", sc.AccountID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}
	if acct.Role == store.RoleSeller && businessName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "business_name is required for sellers"})
		return
	}

	updated, err := h.store.Queries().UpdateAccountProfile(r.Context(), store.UpdateAccountProfileParams{
		ID:           acct.ID,
		DisplayName:  displayName,
		Role:         acct.Role,
		BusinessName: businessName,
	})
	if err != nil {
		h.logger.Error("failed to update profile", "error", err, "account_id", acct.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}

	h.logger.Info("profile completed", "account_id", updated.ID)
	h.respondStep(w, r, &updated)
}

// SubmitRole records the chosen marketplace role.
func (h *OnboardingHandler) SubmitRole(w http.ResponseWriter, r *http.Request) {
	sc, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthenticated"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed form"})
		return
	}

	role := r.PostFormValue("role")
	if role != store.RoleBuyer && role != store.RoleSeller {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "role must be buyer or seller"})
		return
	}
	businessName := strings.TrimSpace(r.PostFormValue("business_name"))
	if role == store.RoleSeller && businessName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "business_name is required for sellers"})
		return
	}
	if role == store.RoleBuyer {
		businessName = ""
	}

	updated, err := h.store.Queries().SetAccountRole(r.Context(), sc.AccountID, role, businessName)
	if err != nil {
		h.logger.Error("failed to set role", "error", err, "account_id", sc.AccountID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
		return
	}

	h.logger.Info("role selected", "account_id", updated.ID, "role", role)
	h.respondStep(w, r, &updated)
}

// respondStep answers an onboarding submission: API callers get the next
// destination as JSON, browsers get redirected there.
func (h *OnboardingHandler) respondStep(w http.ResponseWriter, r *http.Request, acct *store.Account) {
	dest := onboarding.Destination(true, acct)
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"complete":    onboarding.Complete(acct),
			"destination": dest,
		})
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}
