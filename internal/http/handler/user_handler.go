package handler

import (
	"net/http"

	"gamelog-backend/internal/http/middleware"
	"gamelog-backend/internal/http/response"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler { return &UserHandler{} }

// Me returns the profile of the authenticated caller, resolved by the gate.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user": userPayload(user)})
}
