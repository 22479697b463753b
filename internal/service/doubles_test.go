package service

import (
	"sync"
	"time"

	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/repository"
)

// memUserRepo is an in-memory UserRepository for service tests. Setting err
// makes every call fail with it, for exercising failure policies.
type memUserRepo struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*domain.User
	err    error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[uint]*domain.User{}}
}

func (r *memUserRepo) seed(user *domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	user.ID = r.nextID
	r.users[user.ID] = user
	return user
}

func (r *memUserRepo) FindByID(id uint) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *memUserRepo) FindByEmail(email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, user := range r.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) FindByGoogleID(googleID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, user := range r.users {
		if user.GoogleID != nil && *user.GoogleID == googleID {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r *memUserRepo) Create(user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.nextID++
	user.ID = r.nextID
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) Update(user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *memUserRepo) UpdateFields(id uint, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	user, ok := r.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	for name, value := range fields {
		switch name {
		case "failed_login_attempts":
			user.FailedLoginAttempts = value.(int)
		case "locked_until":
			user.LockedUntil = asTimePtr(value)
		case "refresh_token":
			user.RefreshToken = asStringPtr(value)
		case "last_login":
			user.LastLogin = asTimePtr(value)
		case "google_id":
			user.GoogleID = asStringPtr(value)
		case "avatar_url":
			if s, ok := value.(string); ok {
				user.AvatarURL = s
			}
		}
	}
	return nil
}

func asTimePtr(value any) *time.Time {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

func asStringPtr(value any) *string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return &v
	case *string:
		return v
	}
	return nil
}

// memRevokedRepo is an in-memory RevokedTokenRepository keyed by exact token
// string.
type memRevokedRepo struct {
	mu      sync.Mutex
	nextID  uint
	entries map[string]*domain.RevokedToken
	err     error
}

func newMemRevokedRepo() *memRevokedRepo {
	return &memRevokedRepo{entries: map[string]*domain.RevokedToken{}}
}

func (r *memRevokedRepo) Insert(entry *domain.RevokedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.entries[entry.Token]; ok {
		return nil
	}
	r.nextID++
	entry.ID = r.nextID
	copied := *entry
	r.entries[entry.Token] = &copied
	return nil
}

func (r *memRevokedRepo) FindByToken(token string) (*domain.RevokedToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	entry, ok := r.entries[token]
	if !ok {
		return nil, repository.ErrRevokedTokenNotFound
	}
	copied := *entry
	return &copied, nil
}

func (r *memRevokedRepo) DeleteExpiredBefore(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var removed int64
	for token, entry := range r.entries {
		if entry.ExpiresAt.Before(now) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed, nil
}

func (r *memRevokedRepo) CountActive(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var active int64
	for _, entry := range r.entries {
		if entry.ExpiresAt.After(now) {
			active++
		}
	}
	return active, nil
}
