package middleware

import (
	"context"
	"errors"
	"net/http"

	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/http/response"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/repository"
	"gamelog-backend/internal/security"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
	UserContextKey   contextKey = "user"
)

// RevocationChecker is the slice of the revocation ledger the gate needs.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) bool
}

// Authenticate is the single chokepoint for protected routes. Check order:
// presence, revocation, signature/expiry, kind, then user resolution. Each
// failure maps to its own stable error code.
func Authenticate(codec *security.TokenCodec, revocations RevocationChecker, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := security.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required", nil)
				return
			}
			if revocations.IsRevoked(r.Context(), raw) {
				observability.RecordAccessTokenValidation(r.Context(), "revoked", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "TOKEN_REVOKED", "token has been revoked", nil)
				return
			}
			claims, err := codec.Parse(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "invalid access token", nil)
				return
			}
			if claims.TokenType != security.TokenKindAccess {
				observability.RecordAccessTokenValidation(r.Context(), "wrong_kind", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN_TYPE", "invalid token type", nil)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "invalid access token", nil)
				return
			}
			user, err := users.FindByID(userID)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					observability.RecordAccessTokenValidation(r.Context(), "user_not_found", "bearer")
					response.Error(w, r, http.StatusUnauthorized, "USER_NOT_FOUND", "user not found", nil)
					return
				}
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", "bearer")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves the caller when a usable credential is present and
// passes the request through anonymously otherwise. No failure path rejects.
// For routes that personalize for signed-in users but also serve anonymous
// traffic, such as the public game pages mounted next to this API.
func OptionalAuth(codec *security.TokenCodec, revocations RevocationChecker, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := security.BearerToken(r.Header.Get("Authorization"))
			if !ok || revocations.IsRevoked(r.Context(), raw) {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := codec.Parse(raw)
			if err != nil || claims.TokenType != security.TokenKindAccess {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			user, err := users.FindByID(userID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin guards the operator surface. It assumes Authenticate already
// ran; a missing user in context is treated as unauthenticated.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED", "authentication required", nil)
			return
		}
		if !user.IsAdmin {
			observability.Audit(r.Context(), "auth.admin.denied", "rejected", "not_admin", observability.SeverityMedium,
				"email", observability.MaskEmail(user.Email),
				"path", r.URL.Path,
			)
			response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin privileges required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func UserFromContext(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*domain.User)
	return u, ok
}
