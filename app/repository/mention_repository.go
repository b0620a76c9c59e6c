package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/trogdorcult/burninator/app/models"
)

type mentionRepository struct {
	db *gorm.DB
}

func NewMentionRepository(db *gorm.DB) MentionRepository {
	return &mentionRepository{db: db}
}

// RecentByAccount returns the newest mentions first
func (r *mentionRepository) RecentByAccount(ctx context.Context, accountID uint, limit int) ([]models.Mention, error) {
	var out []models.Mention
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("posted_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *mentionRepository) CountByAccount(ctx context.Context, accountID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Mention{}).Where("account_id = ?", accountID).Count(&n).Error
	return n, err
}
