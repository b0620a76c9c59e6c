package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/trogdorcult/burninator/app/models"
)

type generatedImageRepository struct {
	db *gorm.DB
}

func NewGeneratedImageRepository(db *gorm.DB) GeneratedImageRepository {
	return &generatedImageRepository{db: db}
}

func (r *generatedImageRepository) Create(ctx context.Context, img *models.GeneratedImage) error {
	return r.db.WithContext(ctx).Create(img).Error
}

func (r *generatedImageRepository) GetByID(ctx context.Context, id uint) (*models.GeneratedImage, error) {
	var img models.GeneratedImage
	if err := r.db.WithContext(ctx).First(&img, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &img, nil
}

// ListByAccount returns newest first
func (r *generatedImageRepository) ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.GeneratedImage, error) {
	var out []models.GeneratedImage
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("generated_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

func (r *generatedImageRepository) UpdateStored(ctx context.Context, id uint, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.GeneratedImage{}).Where("id = ?", id).Updates(fields).Error
}

func (r *generatedImageRepository) CountByAccount(ctx context.Context, accountID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.GeneratedImage{}).Where("account_id = ?", accountID).Count(&n).Error
	return n, err
}
