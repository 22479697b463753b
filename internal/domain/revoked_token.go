package domain

import "time"

// RevokedToken is a revocation-ledger entry: an exact credential string that
// must not be honored even though it has not naturally expired. Rows are hard
// deleted by cleanup once ExpiresAt has passed; there is no soft delete so a
// revoked token can never be un-revoked by accident.
type RevokedToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"type:text;uniqueIndex:idx_revoked_tokens_token,length:512;not null" json:"-"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	Kind      string    `gorm:"size:16;not null" json:"kind"`
	Reason    *string   `gorm:"size:255" json:"reason,omitempty"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}
