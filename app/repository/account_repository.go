package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trogdorcult/burninator/app/models"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var a models.Account
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *accountRepository) GetByWallet(ctx context.Context, wallet string) (*models.Account, error) {
	var a models.Account
	err := r.db.WithContext(ctx).Where("wallet_address = ?", models.NormalizeWallet(wallet)).First(&a).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (r *accountRepository) SignIn(ctx context.Context, wallet string) (*models.Account, bool, error) {
	now := time.Now().UTC()
	a := models.Account{WalletAddress: models.NormalizeWallet(wallet), LastActiveAt: &now}
	if err := a.Validate(); err != nil {
		return nil, false, err
	}

	// Concurrent first sign-ins race on the unique wallet index; the loser
	// inserts nothing and falls through to the touch below.
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&a)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &a, true, nil
	}

	existing, err := r.GetByWallet(ctx, a.WalletAddress)
	if err != nil {
		return nil, false, err
	}
	if err := r.db.WithContext(ctx).Model(existing).UpdateColumn("last_active_at", now).Error; err != nil {
		return nil, false, err
	}
	existing.LastActiveAt = &now
	return existing, false, nil
}

func (r *accountRepository) UpdateUsername(ctx context.Context, id uint, username string) (*models.Account, error) {
	err := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Update("username", username).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepository) LinkTwitter(ctx context.Context, id uint, link TwitterLink) (*models.Account, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		q := tx.Model(&models.Account{}).Where("id <> ?", id)
		if link.TwitterID != "" {
			q = q.Where("(twitter_handle = ? OR twitter_id = ?)", link.Handle, link.TwitterID)
		} else {
			q = q.Where("twitter_handle = ?", link.Handle)
		}
		if err := q.Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return ErrAlreadyLinked
		}

		updates := map[string]any{
			"twitter_handle": link.Handle,
			"is_verified":    link.TwitterID != "",
		}
		if link.TwitterID != "" {
			updates["twitter_id"] = link.TwitterID
		}
		if link.ProfileImage != "" {
			updates["profile_image"] = link.ProfileImage
		}
		res := tx.Model(&models.Account{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// The handle doubles as display name until the user picks one.
		return tx.Model(&models.Account{}).Where("id = ? AND (username IS NULL OR username = '')", id).
			Update("username", link.Handle).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAlreadyLinked
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepository) UnlinkTwitter(ctx context.Context, id uint) (*models.Account, error) {
	err := r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(map[string]any{
		"twitter_handle": gorm.Expr("NULL"),
		"twitter_id":     gorm.Expr("NULL"),
		"is_verified":    false,
	}).Error
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepository) Stats(ctx context.Context, id uint) (*AccountStats, error) {
	var out AccountStats
	db := r.db.WithContext(ctx)

	var row struct {
		Count int64
		Avg   float64
	}
	err := db.Model(&models.Mention{}).
		Select("COUNT(*) AS count, COALESCE(AVG(quality_score), 0) AS avg").
		Where("account_id = ?", id).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	out.TotalMentions = row.Count
	out.AverageScore = row.Avg

	if err := db.Model(&models.GeneratedImage{}).Where("account_id = ?", id).Count(&out.TotalImages).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *accountRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).Count(&n).Error
	return n, err
}

func (r *accountRepository) PointDrift(ctx context.Context) ([]PointDrift, error) {
	var out []PointDrift
	err := r.db.WithContext(ctx).
		Table("accounts AS a").
		Select("a.id AS account_id, a.wallet_address, a.total_points, COALESCE(SUM(m.points_awarded), 0) AS mention_points").
		Joins("LEFT JOIN mentions m ON m.account_id = a.id").
		Group("a.id, a.wallet_address, a.total_points").
		Having("a.total_points <> COALESCE(SUM(m.points_awarded), 0)").
		Order("a.id").
		Scan(&out).Error
	return out, err
}

// RepairPoints recomputes one total from its mentions in a single statement.
func (r *accountRepository) RepairPoints(ctx context.Context, id uint) error {
	sum := r.db.Model(&models.Mention{}).Select("COALESCE(SUM(points_awarded), 0)").Where("account_id = ?", id)
	return r.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).
		UpdateColumn("total_points", sum).Error
}
