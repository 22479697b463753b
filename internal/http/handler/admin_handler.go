package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gamelog-backend/internal/http/middleware"
	"gamelog-backend/internal/http/response"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/repository"
	"gamelog-backend/internal/service"
)

// AdminHandler is the operator surface for incident response: unlocking
// accounts, revoking tokens and inspecting the revocation ledger. Every route
// sits behind the gate plus the admin check.
type AdminHandler struct {
	auth      *service.AuthService
	lockout   *service.LockoutService
	blacklist *service.BlacklistService
}

func NewAdminHandler(auth *service.AuthService, lockout *service.LockoutService, blacklist *service.BlacklistService) *AdminHandler {
	return &AdminHandler{auth: auth, lockout: lockout, blacklist: blacklist}
}

type unlockRequest struct {
	// Identifier is a numeric user id or an email address.
	Identifier string `json:"identifier"`
}

func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Identifier) == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "identifier is required", nil)
		return
	}
	user, err := h.lockout.AdminUnlock(r.Context(), strings.TrimSpace(req.Identifier))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", "user not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user": userPayload(user), "unlocked": true})
}

func (h *AdminHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email is required", nil)
		return
	}
	status, err := h.lockout.CheckStatus(r.Context(), email)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

type revokeAllRequest struct {
	UserID uint   `json:"user_id"`
	Reason string `json:"reason"`
}

func (h *AdminHandler) RevokeAllTokens(w http.ResponseWriter, r *http.Request) {
	var req revokeAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "user_id is required", nil)
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "admin revoke"
	}
	if admin, ok := middleware.UserFromContext(r.Context()); ok {
		observability.Audit(r.Context(), "auth.admin.revoke_all", "requested", reason, observability.SeverityHigh,
			"admin_email", observability.MaskEmail(admin.Email),
			"target_user_id", req.UserID,
		)
	}
	if err := h.auth.RevokeAllForUser(r.Context(), req.UserID, reason); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", "user not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": true, "user_id": req.UserID})
}

func (h *AdminHandler) CleanupLedger(w http.ResponseWriter, r *http.Request) {
	removed, err := h.blacklist.Cleanup(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"removed": removed})
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	active, err := h.blacklist.ActiveEntries(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	policy := h.lockout.Policy()
	response.JSON(w, r, http.StatusOK, map[string]any{
		"active_revocations":   active,
		"max_failed_attempts":  policy.MaxFailedAttempts,
		"lockout_duration_min": int(policy.LockoutDuration.Minutes()),
	})
}
