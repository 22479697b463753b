package domain

import "time"

type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Email               string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Username            string     `gorm:"size:100;not null" json:"username"`
	GoogleID            *string    `gorm:"size:128;uniqueIndex" json:"-"`
	PasswordHash        *string    `gorm:"size:128" json:"-"`
	AvatarURL           string     `gorm:"size:512" json:"avatar_url,omitempty"`
	IsAdmin             bool       `gorm:"not null;default:false" json:"is_admin"`
	FailedLoginAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil         *time.Time `json:"-"`
	RefreshToken        *string    `gorm:"type:text" json:"-"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsLocked reports whether the account is currently inside a lockout window.
// A LockedUntil in the past counts as unlocked; the guard clears it lazily.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
