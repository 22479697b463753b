package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gamelog-backend/internal/domain"
	"gamelog-backend/internal/observability"
)

var ErrRevokedTokenNotFound = errors.New("revoked token not found")

type RevokedTokenRepository interface {
	Insert(entry *domain.RevokedToken) error
	FindByToken(token string) (*domain.RevokedToken, error)
	DeleteExpiredBefore(now time.Time) (int64, error)
	CountActive(now time.Time) (int64, error)
}

type GormRevokedTokenRepository struct{ db *gorm.DB }

func NewRevokedTokenRepository(db *gorm.DB) RevokedTokenRepository {
	return &GormRevokedTokenRepository{db: db}
}

// Insert is idempotent on the token string: re-revoking an already revoked
// credential is a no-op, not an error.
func (r *GormRevokedTokenRepository) Insert(entry *domain.RevokedToken) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoNothing: true,
	}).Create(entry).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "revoked_token", "insert", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "revoked_token", "insert", "success")
	return nil
}

func (r *GormRevokedTokenRepository) FindByToken(token string) (*domain.RevokedToken, error) {
	var entry domain.RevokedToken
	if err := r.db.Where("token = ?", token).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "revoked_token", "find_by_token", "not_found")
			return nil, ErrRevokedTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "revoked_token", "find_by_token", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "revoked_token", "find_by_token", "success")
	return &entry, nil
}

func (r *GormRevokedTokenRepository) DeleteExpiredBefore(now time.Time) (int64, error) {
	res := r.db.Where("expires_at <= ?", now).Delete(&domain.RevokedToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "revoked_token", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "revoked_token", "delete_expired", "success")
	return res.RowsAffected, nil
}

func (r *GormRevokedTokenRepository) CountActive(now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&domain.RevokedToken{}).Where("expires_at > ?", now).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "revoked_token", "count_active", "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(context.Background(), "revoked_token", "count_active", "success")
	return count, nil
}
