package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/observability"
	"gamelog-backend/internal/repository"
)

type LockoutPolicy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

type LockoutStatus struct {
	AccountExists        bool       `json:"account_exists"`
	IsLocked             bool       `json:"is_locked"`
	FailedAttempts       int        `json:"failed_attempts"`
	AttemptsRemaining    int        `json:"attempts_remaining"`
	LockedUntil          *time.Time `json:"locked_until,omitempty"`
	LockMinutesRemaining int        `json:"lock_minutes_remaining"`
}

// LockoutService slows down per-account credential stuffing: a durable
// failed-attempt counter on the user row with a lock window, cleared lazily
// once the window has elapsed. Store errors fail closed: a login that cannot
// consult the guard is rejected.
type LockoutService struct {
	users  repository.UserRepository
	policy LockoutPolicy
	now    func() time.Time
}

func NewLockoutService(users repository.UserRepository, policy LockoutPolicy) *LockoutService {
	return &LockoutService{users: users, policy: policy, now: time.Now}
}

func (s *LockoutService) Policy() LockoutPolicy { return s.policy }

// RecordFailedAttempt increments the counter for the account and locks it
// when the threshold is reached. An unknown email yields a neutral status so
// the caller can return the same generic error as a wrong password. Attempts
// during an active lock do not extend it.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, email string) (LockoutStatus, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LockoutStatus{AttemptsRemaining: s.policy.MaxFailedAttempts}, nil
		}
		return LockoutStatus{}, err
	}

	now := s.now()
	if user.IsLocked(now) {
		return s.statusFor(user, now), nil
	}

	attempts := user.FailedLoginAttempts
	if user.LockedUntil != nil {
		// Expired lock: this failure starts a fresh count.
		attempts = 0
	}
	attempts++

	fields := map[string]any{"failed_login_attempts": attempts}
	var lockedUntil *time.Time
	if attempts >= s.policy.MaxFailedAttempts {
		until := now.Add(s.policy.LockoutDuration).UTC()
		lockedUntil = &until
		fields["locked_until"] = until
		observability.RecordLockoutEvent("locked")
		observability.Audit(ctx, "auth.account.locked", "success", "failed_attempt_threshold", observability.SeverityHigh,
			"email", observability.MaskEmail(user.Email),
			"attempts", attempts,
		)
	} else if user.LockedUntil != nil {
		fields["locked_until"] = nil
	}
	if err := s.users.UpdateFields(user.ID, fields); err != nil {
		return LockoutStatus{}, err
	}

	user.FailedLoginAttempts = attempts
	user.LockedUntil = lockedUntil
	return s.statusFor(user, now), nil
}

// ResetOnSuccess zeroes the counter and clears any lock. Called on every
// successful login and OAuth callback.
func (s *LockoutService) ResetOnSuccess(ctx context.Context, userID uint) error {
	return s.users.UpdateFields(userID, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
	})
}

// CheckStatus reports the current lock state. An elapsed lock is treated as
// an implicit unlock and the reset is written back before reporting, so this
// is not side-effect-free.
func (s *LockoutService) CheckStatus(ctx context.Context, email string) (LockoutStatus, error) {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LockoutStatus{AttemptsRemaining: s.policy.MaxFailedAttempts}, nil
		}
		return LockoutStatus{}, err
	}

	now := s.now()
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		if err := s.ResetOnSuccess(ctx, user.ID); err != nil {
			return LockoutStatus{}, err
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}
	return s.statusFor(user, now), nil
}

// AdminUnlock clears the lock and counter, keyed by numeric id or email.
func (s *LockoutService) AdminUnlock(ctx context.Context, identifier string) (*domain.User, error) {
	user, err := s.findByIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	if err := s.ResetOnSuccess(ctx, user.ID); err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	observability.RecordLockoutEvent("admin_unlock")
	observability.Audit(ctx, "auth.account.unlocked", "success", "admin_unlock", observability.SeverityMedium,
		"email", observability.MaskEmail(user.Email),
	)
	return user, nil
}

func (s *LockoutService) findByIdentifier(identifier string) (*domain.User, error) {
	if id, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		return s.users.FindByID(uint(id))
	}
	return s.users.FindByEmail(identifier)
}

func (s *LockoutService) statusFor(user *domain.User, now time.Time) LockoutStatus {
	status := LockoutStatus{
		AccountExists:  true,
		FailedAttempts: user.FailedLoginAttempts,
	}
	if user.IsLocked(now) {
		status.IsLocked = true
		status.LockedUntil = user.LockedUntil
		status.LockMinutesRemaining = int(user.LockedUntil.Sub(now).Round(time.Minute).Minutes())
		return status
	}
	status.AttemptsRemaining = s.policy.MaxFailedAttempts - user.FailedLoginAttempts
	if status.AttemptsRemaining < 0 {
		status.AttemptsRemaining = 0
	}
	return status
}
