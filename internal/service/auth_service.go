package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/repository"
	"gamelog-backend/internal/security"
)

var (
	// ErrInvalidCredentials covers wrong password, unknown account and locked
	// account uniformly so callers cannot probe for account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")

	ErrRefreshTokenRequired = errors.New("refresh token required")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrInvalidTokenType     = errors.New("invalid token type")
	// ErrInvalidRefreshToken covers expired, malformed and superseded refresh
	// tokens uniformly.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// AuthService orchestrates the login, refresh and logout workflows over the
// codec, ledger, lockout guard and user store. Steps are not transactional;
// each is idempotent and retry-safe, and partial failure leaves whatever the
// committed steps produced.
type AuthService struct {
	users     repository.UserRepository
	codec     *security.TokenCodec
	blacklist *BlacklistService
	lockout   *LockoutService
}

func NewAuthService(
	users repository.UserRepository,
	codec *security.TokenCodec,
	blacklist *BlacklistService,
	lockout *LockoutService,
) *AuthService {
	return &AuthService{users: users, codec: codec, blacklist: blacklist, lockout: lockout}
}

func (s *AuthService) Register(ctx context.Context, email, username, password string) (*LoginResult, error) {
	if _, err := s.users.FindByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if username = strings.TrimSpace(username); username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	user := &domain.User{Email: email, Username: username, PasswordHash: &hash}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	observability.Audit(ctx, "auth.user.created", "success", "local_register", observability.SeverityLow,
		"email", observability.MaskEmail(email),
	)
	return s.CompleteLogin(ctx, user, "local")
}

// LoginWithPassword consults the lockout guard before and after the password
// check. All failure paths return ErrInvalidCredentials.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string) (*LoginResult, error) {
	status, err := s.lockout.CheckStatus(ctx, email)
	if err != nil {
		return nil, err
	}
	if status.IsLocked {
		observability.RecordAuthLogin("local", "locked")
		observability.Audit(ctx, "auth.login", "rejected", "account_locked", observability.SeverityMedium,
			"email", observability.MaskEmail(email),
		)
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a bcrypt compare and a guard round-trip anyway so unknown
			// and known accounts take the same path.
			security.BurnPasswordCheck(password)
			if _, gerr := s.lockout.RecordFailedAttempt(ctx, email); gerr != nil {
				return nil, gerr
			}
			observability.RecordAuthLogin("local", "failure")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	passwordOK := false
	if user.PasswordHash != nil {
		passwordOK = security.CheckPassword(*user.PasswordHash, password)
	} else {
		// OAuth-only account: no usable hash, same cost as a failed compare.
		security.BurnPasswordCheck(password)
	}
	if !passwordOK {
		if _, gerr := s.lockout.RecordFailedAttempt(ctx, email); gerr != nil {
			return nil, gerr
		}
		observability.RecordAuthLogin("local", "failure")
		return nil, ErrInvalidCredentials
	}

	return s.CompleteLogin(ctx, user, "local")
}

// CompleteLogin finishes any successful authentication (password or OAuth):
// reset the lockout counters, stamp last_login, issue a fresh pair and make
// the new refresh value the single live one for the user.
func (s *AuthService) CompleteLogin(ctx context.Context, user *domain.User, provider string) (*LoginResult, error) {
	if err := s.lockout.ResetOnSuccess(ctx, user.ID); err != nil {
		return nil, err
	}
	result, err := s.issuePair(ctx, user)
	if err != nil {
		observability.RecordAuthLogin(provider, "error")
		return nil, err
	}
	observability.RecordAuthLogin(provider, "success")
	observability.Audit(ctx, "auth.login", "success", provider, observability.SeverityLow,
		"email", observability.MaskEmail(user.Email),
	)
	return result, nil
}

// Refresh exchanges a refresh credential for a new pair. The presented value
// must be unrevoked, valid, of refresh kind and exactly equal to the stored
// live value; the distinct internal errors collapse at the HTTP boundary into
// the anti-enumeration taxonomy.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*LoginResult, error) {
	if presented == "" {
		observability.RecordAuthRefresh("missing")
		return nil, ErrRefreshTokenRequired
	}
	if s.blacklist.IsRevoked(ctx, presented) {
		observability.RecordAuthRefresh("revoked")
		observability.Audit(ctx, "auth.refresh", "rejected", "token_revoked", observability.SeverityMedium)
		return nil, ErrTokenRevoked
	}
	claims, err := s.codec.Parse(presented)
	if err != nil {
		observability.RecordAuthRefresh("invalid")
		return nil, ErrInvalidRefreshToken
	}
	if claims.TokenType != security.TokenKindRefresh {
		observability.RecordAuthRefresh("wrong_kind")
		return nil, ErrInvalidTokenType
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAuthRefresh("invalid")
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthRefresh("invalid")
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	// Ownership check: a token superseded by a later login no longer matches
	// the stored value and is treated exactly like an invalid token.
	if user.RefreshToken == nil || *user.RefreshToken != presented {
		observability.RecordAuthRefresh("superseded")
		observability.Audit(ctx, "auth.refresh", "rejected", "ownership_mismatch", observability.SeverityMedium,
			"email", observability.MaskEmail(user.Email),
		)
		return nil, ErrInvalidRefreshToken
	}

	result, err := s.issuePair(ctx, user)
	if err != nil {
		observability.RecordAuthRefresh("error")
		return nil, err
	}
	observability.RecordAuthRefresh("success")
	return result, nil
}

// Logout is best-effort and never fails: a client that believes it is logged
// out must end up logged out locally regardless of server-side cleanup.
func (s *AuthService) Logout(ctx context.Context, accessToken string) {
	status := "anonymous"
	if accessToken != "" {
		if claims, err := s.codec.Parse(accessToken); err == nil {
			if userID, err := claims.UserID(); err == nil {
				if err := s.blacklist.RevokeAllForUser(ctx, userID, "user logout"); err != nil {
					slog.WarnContext(ctx, "logout revocation failed", "error", err.Error())
					status = "partial"
				} else {
					status = "success"
				}
			}
		}
	}
	observability.RecordAuthLogout(status)
}

// RevokeAllForUser exposes incident-response revocation to the admin surface.
func (s *AuthService) RevokeAllForUser(ctx context.Context, userID uint, reason string) error {
	return s.blacklist.RevokeAllForUser(ctx, userID, reason)
}

func (s *AuthService) issuePair(ctx context.Context, user *domain.User) (*LoginResult, error) {
	access, err := s.codec.IssueAccess(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefresh(user)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if err := s.users.UpdateFields(user.ID, map[string]any{
		"refresh_token": refresh,
		"last_login":    now,
	}); err != nil {
		return nil, err
	}
	user.RefreshToken = &refresh
	user.LastLogin = &now
	return &LoginResult{AccessToken: access, RefreshToken: refresh, User: user}, nil
}
