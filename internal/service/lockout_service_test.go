package service

import (
	"context"
	"testing"
	"time"

	"gamelog-backend/internal/domain"
)

func newLockoutFixture(t *testing.T) (*LockoutService, *memUserRepo, *time.Time) {
	t.Helper()
	users := newMemUserRepo()
	svc := NewLockoutService(users, LockoutPolicy{MaxFailedAttempts: 5, LockoutDuration: 30 * time.Minute})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	svc.now = func() time.Time { return *clock }
	return svc, users, clock
}

func TestFailedAttemptsLockAtThreshold(t *testing.T) {
	svc, users, _ := newLockoutFixture(t)
	users.seed(&domain.User{Email: "player@example.com", Username: "player"})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		status, err := svc.RecordFailedAttempt(ctx, "player@example.com")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if status.IsLocked {
			t.Fatalf("locked after %d attempts", i)
		}
		if status.AttemptsRemaining != 5-i {
			t.Fatalf("attempts remaining after %d = %d, want %d", i, status.AttemptsRemaining, 5-i)
		}
	}

	status, err := svc.RecordFailedAttempt(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("fifth attempt: %v", err)
	}
	if !status.IsLocked {
		t.Fatal("not locked at threshold")
	}
	if status.LockedUntil == nil {
		t.Fatal("locked status has no locked_until")
	}
	if status.LockMinutesRemaining != 30 {
		t.Fatalf("lock minutes remaining = %d, want 30", status.LockMinutesRemaining)
	}
}

func TestAttemptsDuringLockDoNotExtendIt(t *testing.T) {
	svc, users, clock := newLockoutFixture(t)
	users.seed(&domain.User{Email: "player@example.com", Username: "player"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(ctx, "player@example.com")
	}
	locked, _ := svc.CheckStatus(ctx, "player@example.com")
	if !locked.IsLocked {
		t.Fatal("account not locked")
	}
	originalUntil := *locked.LockedUntil

	*clock = clock.Add(10 * time.Minute)
	status, err := svc.RecordFailedAttempt(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("attempt during lock: %v", err)
	}
	if !status.IsLocked {
		t.Fatal("lock dropped by attempt during window")
	}
	if !status.LockedUntil.Equal(originalUntil) {
		t.Fatalf("locked_until moved from %v to %v", originalUntil, status.LockedUntil)
	}
	if status.FailedAttempts != 5 {
		t.Fatalf("failed attempts = %d, want unchanged 5", status.FailedAttempts)
	}
}

func TestFailureAfterExpiredLockRestartsCount(t *testing.T) {
	svc, users, clock := newLockoutFixture(t)
	users.seed(&domain.User{Email: "player@example.com", Username: "player"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(ctx, "player@example.com")
	}
	*clock = clock.Add(31 * time.Minute)

	status, err := svc.RecordFailedAttempt(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("attempt after lock expiry: %v", err)
	}
	if status.IsLocked {
		t.Fatal("still locked after window elapsed")
	}
	if status.FailedAttempts != 1 {
		t.Fatalf("failed attempts = %d, want fresh count of 1", status.FailedAttempts)
	}
}

func TestCheckStatusLazilyClearsExpiredLock(t *testing.T) {
	svc, users, clock := newLockoutFixture(t)
	user := users.seed(&domain.User{Email: "player@example.com", Username: "player"})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(ctx, "player@example.com")
	}
	*clock = clock.Add(31 * time.Minute)

	status, err := svc.CheckStatus(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if status.IsLocked || status.FailedAttempts != 0 {
		t.Fatalf("status after expiry = %+v, want unlocked with zero attempts", status)
	}
	stored, _ := users.FindByID(user.ID)
	if stored.LockedUntil != nil || stored.FailedLoginAttempts != 0 {
		t.Fatal("expired lock not written back to the store")
	}
}

func TestUnknownEmailGetsNeutralStatus(t *testing.T) {
	svc, _, _ := newLockoutFixture(t)
	status, err := svc.RecordFailedAttempt(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if status.AccountExists || status.IsLocked {
		t.Fatalf("status for unknown account = %+v", status)
	}
	if status.AttemptsRemaining != 5 {
		t.Fatalf("attempts remaining = %d, want full budget", status.AttemptsRemaining)
	}
}

func TestResetOnSuccess(t *testing.T) {
	svc, users, _ := newLockoutFixture(t)
	user := users.seed(&domain.User{Email: "player@example.com", Username: "player"})
	ctx := context.Background()

	svc.RecordFailedAttempt(ctx, "player@example.com")
	svc.RecordFailedAttempt(ctx, "player@example.com")
	if err := svc.ResetOnSuccess(ctx, user.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	stored, _ := users.FindByID(user.ID)
	if stored.FailedLoginAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("counters not reset: attempts=%d locked_until=%v", stored.FailedLoginAttempts, stored.LockedUntil)
	}
}

func TestAdminUnlock(t *testing.T) {
	svc, users, _ := newLockoutFixture(t)
	user := users.seed(&domain.User{Email: "player@example.com", Username: "player"})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(ctx, "player@example.com")
	}

	unlocked, err := svc.AdminUnlock(ctx, "player@example.com")
	if err != nil {
		t.Fatalf("unlock by email: %v", err)
	}
	if unlocked.LockedUntil != nil || unlocked.FailedLoginAttempts != 0 {
		t.Fatal("unlock by email left lock state behind")
	}

	for i := 0; i < 5; i++ {
		svc.RecordFailedAttempt(ctx, "player@example.com")
	}
	if _, err := svc.AdminUnlock(ctx, "1"); err != nil {
		t.Fatalf("unlock by id: %v", err)
	}
	stored, _ := users.FindByID(user.ID)
	if stored.LockedUntil != nil || stored.FailedLoginAttempts != 0 {
		t.Fatal("unlock by id left lock state behind")
	}
}
