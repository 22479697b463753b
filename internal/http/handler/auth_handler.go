package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"gamelog-backend/internal/config"
	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/http/response"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/security"
	"gamelog-backend/internal/service"
)

const oauthStateTTL = 10 * time.Minute

type AuthHandler struct {
	auth    *service.AuthService
	oauth   *service.OAuthService
	cookies *security.CookieWriter
	cfg     *config.Config
}

func NewAuthHandler(auth *service.AuthService, oauth *service.OAuthService, cookies *security.CookieWriter, cfg *config.Config) *AuthHandler {
	return &AuthHandler{auth: auth, oauth: oauth, cookies: cookies, cfg: cfg}
}

// userPayload is the safe subset of the user record returned to clients. The
// refresh token never appears in a JSON body; it travels only in the cookie.
func userPayload(user *domain.User) map[string]any {
	return map[string]any{
		"id":         user.ID,
		"email":      user.Email,
		"username":   user.Username,
		"avatar_url": user.AvatarURL,
		"is_admin":   user.IsAdmin,
		"last_login": user.LastLogin,
	}
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "google login is not enabled", nil)
		return
	}
	state, err := security.NewState()
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	h.cookies.SetOAuthState(w, security.SignState(state, h.cfg.OAuthStateSecret), oauthStateTTL)
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "google login is not enabled", nil)
		return
	}
	state := r.URL.Query().Get("state")
	signed := security.GetCookie(r, security.OAuthStateCookieName)
	h.cookies.ClearOAuthState(w)
	if state == "" || signed == "" || !security.VerifyState(signed, state, h.cfg.OAuthStateSecret) {
		observability.Audit(r.Context(), "auth.oauth.callback", "rejected", "state_mismatch", observability.SeverityMedium)
		response.Error(w, r, http.StatusBadRequest, "INVALID_OAUTH_STATE", "oauth state verification failed", nil)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "missing authorization code", nil)
		return
	}

	user, err := h.oauth.HandleGoogleCallback(r.Context(), code)
	if err != nil {
		observability.Audit(r.Context(), "auth.oauth.callback", "failure", service.ClassifyOAuthError(err), observability.SeverityMedium)
		response.Error(w, r, http.StatusUnauthorized, "OAUTH_FAILED", "google authentication failed", nil)
		return
	}
	result, err := h.auth.CompleteLogin(r.Context(), user, "google")
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusOK, result)
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "a valid email is required", nil)
		return
	}
	if len(req.Password) < 8 {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 8 characters", nil)
		return
	}

	result, err := h.auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			response.Error(w, r, http.StatusConflict, "EMAIL_TAKEN", "email already registered", nil)
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusCreated, result)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required", nil)
		return
	}

	result, err := h.auth.LoginWithPassword(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			// One undifferentiated response for wrong password, unknown
			// account and locked account.
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
			return
		}
		h.internalError(w, r, err)
		return
	}
	h.respondWithSession(w, r, http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh reads the credential from the path-scoped cookie, falling back to
// the body for non-browser clients. Any terminal rejection clears the cookie
// so browsers stop replaying a dead credential.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented := security.GetCookie(r, security.RefreshCookieName)
	if presented == "" && r.Body != nil {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			presented = req.RefreshToken
		}
	}

	result, err := h.auth.Refresh(r.Context(), presented)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefreshTokenRequired):
			response.Error(w, r, http.StatusUnauthorized, "REFRESH_TOKEN_REQUIRED", "refresh token required", nil)
		case errors.Is(err, service.ErrTokenRevoked):
			h.cookies.ClearRefreshToken(w)
			response.Error(w, r, http.StatusUnauthorized, "TOKEN_REVOKED", "token has been revoked", nil)
		case errors.Is(err, service.ErrInvalidTokenType):
			h.cookies.ClearRefreshToken(w)
			response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN_TYPE", "invalid token type", nil)
		case errors.Is(err, service.ErrInvalidRefreshToken):
			h.cookies.ClearRefreshToken(w)
			response.Error(w, r, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token", nil)
		default:
			h.internalError(w, r, err)
		}
		return
	}
	h.respondWithSession(w, r, http.StatusOK, result)
}

// Logout always reports success. Cookie clearing is unconditional and the
// server-side revocation is best-effort.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, _ := security.BearerToken(r.Header.Get("Authorization"))
	h.auth.Logout(r.Context(), raw)
	h.cookies.ClearRefreshToken(w)
	h.cookies.ClearOAuthState(w)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, result *service.LoginResult) {
	h.cookies.SetRefreshToken(w, result.RefreshToken, h.cfg.RefreshTokenTTL)
	response.JSON(w, r, status, map[string]any{
		"access_token": result.AccessToken,
		"user":         userPayload(result.User),
	})
}

func (h *AuthHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	var details any
	if h.cfg.DevVerboseErrors && !h.cfg.IsProduction() {
		details = err.Error()
	}
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", details)
}
