package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/repository"
	"gamelog-backend/internal/security"
)

// RevocationCache is an optional exact-string read cache in front of the
// ledger. The ledger remains authoritative; cache failures are ignored.
type RevocationCache interface {
	Get(ctx context.Context, token string) (bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
}

// BlacklistService is the revocation ledger: the durable record of credential
// strings that must not be honored before their natural expiry.
type BlacklistService struct {
	entries repository.RevokedTokenRepository
	users   repository.UserRepository
	codec   *security.TokenCodec
	cache   RevocationCache

	// failOpen controls lookup behavior when the store is unreachable.
	// Revocation is a defense-in-depth layer, not the primary check, so the
	// default policy prioritizes availability.
	failOpen bool
}

func NewBlacklistService(
	entries repository.RevokedTokenRepository,
	users repository.UserRepository,
	codec *security.TokenCodec,
	cache RevocationCache,
	failOpen bool,
) *BlacklistService {
	return &BlacklistService{
		entries:  entries,
		users:    users,
		codec:    codec,
		cache:    cache,
		failOpen: failOpen,
	}
}

// Record blacklists a credential string. Decoding the credential only serves
// to recover its expiry; an undecodable credential is still recorded, with a
// default expiry of now + access TTL so the entry itself ages out.
func (s *BlacklistService) Record(ctx context.Context, token string, ownerID *uint, kind, reason string) error {
	expiresAt, ok := s.codec.ExpiryOf(token)
	if !ok {
		expiresAt = time.Now().Add(s.codec.AccessTTL())
	}
	entry := &domain.RevokedToken{
		Token:     token,
		UserID:    ownerID,
		Kind:      kind,
		ExpiresAt: expiresAt,
	}
	if reason != "" {
		entry.Reason = &reason
	}
	if err := s.entries.Insert(entry); err != nil {
		observability.RecordRevocationEvent(kind, "error")
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, token, time.Until(expiresAt)); err != nil {
			slog.WarnContext(ctx, "revocation cache set failed", "error", err.Error())
		}
	}
	observability.RecordRevocationEvent(kind, "recorded")
	observability.Audit(ctx, "auth.token.revoked", "success", reason, observability.SeverityMedium,
		"kind", kind,
	)
	return nil
}

// IsRevoked performs an exact-string lookup. On storage errors it applies the
// configured failure policy: fail open returns false (honor the credential)
// with the error logged, fail closed returns true (reject it).
func (s *BlacklistService) IsRevoked(ctx context.Context, token string) bool {
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, token)
		if err != nil {
			slog.WarnContext(ctx, "revocation cache lookup failed", "error", err.Error())
		} else if hit {
			return true
		}
	}
	_, err := s.entries.FindByToken(token)
	if err == nil {
		return true
	}
	if errors.Is(err, repository.ErrRevokedTokenNotFound) {
		return false
	}
	slog.ErrorContext(ctx, "revocation ledger lookup failed", "error", err.Error(), "fail_open", s.failOpen)
	observability.RecordRevocationEvent("unknown", "lookup_error")
	return !s.failOpen
}

// RevokeAllForUser records the user's current refresh credential and clears
// it from the user row, so subsequent refresh attempts fail the ownership
// check independent of the ledger. Outstanding access tokens keep working
// until their short natural expiry; that residual window is accepted.
func (s *BlacklistService) RevokeAllForUser(ctx context.Context, userID uint, reason string) error {
	user, err := s.users.FindByID(userID)
	if err != nil {
		return err
	}
	if user.RefreshToken != nil && *user.RefreshToken != "" {
		if err := s.Record(ctx, *user.RefreshToken, &user.ID, security.TokenKindRefresh, reason); err != nil {
			return err
		}
	}
	if err := s.users.UpdateFields(user.ID, map[string]any{"refresh_token": nil}); err != nil {
		return err
	}
	observability.Audit(ctx, "auth.tokens.revoked_all", "success", reason, observability.SeverityMedium,
		"email", observability.MaskEmail(user.Email),
	)
	return nil
}

// Cleanup deletes entries whose expiry has passed and returns the count. It
// is advisory: skipping it only wastes storage, never widens the trust
// window, because lookups are by exact string.
func (s *BlacklistService) Cleanup(ctx context.Context) (int64, error) {
	removed, err := s.entries.DeleteExpiredBefore(time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.InfoContext(ctx, "revocation ledger cleanup", "removed", removed)
	}
	return removed, nil
}

// ActiveEntries reports unexpired ledger size for the admin stats endpoint.
func (s *BlacklistService) ActiveEntries(ctx context.Context) (int64, error) {
	return s.entries.CountActive(time.Now())
}
