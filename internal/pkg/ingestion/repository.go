package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trogdorcult/burninator/app/models"
)

var ErrAccountNotFound = errors.New("account not found")

// Repository is the durable state the pipeline mutates.
type Repository interface {
	FindAccountByTwitterID(ctx context.Context, twitterID string) (*models.Account, error)
	MentionExists(ctx context.Context, tweetID string) (bool, error)
	// CreditMention inserts the mention and adds its points to the owning
	// account in one transaction. It reports false when the mention already
	// existed, in which case nothing was changed.
	CreditMention(ctx context.Context, mention *models.Mention) (bool, error)
	// LatestMentionTime is the pull watermark; ok is false when no mention exists.
	LatestMentionTime(ctx context.Context) (t time.Time, ok bool, err error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an ingestion repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindAccountByTwitterID(ctx context.Context, twitterID string) (*models.Account, error) {
	var a models.Account
	err := r.db.WithContext(ctx).Where("twitter_id = ?", twitterID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) MentionExists(ctx context.Context, tweetID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Mention{}).Where("tweet_id = ?", tweetID).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) CreditMention(ctx context.Context, mention *models.Mention) (bool, error) {
	credited := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tweet_id"}},
			DoNothing: true,
		}).Create(mention)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.Account{}).
			Where("id = ?", mention.AccountID).
			Updates(map[string]interface{}{
				"total_points":   gorm.Expr("total_points + ?", mention.PointsAwarded),
				"last_active_at": &now,
			}).Error; err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}

func (r *gormRepository) LatestMentionTime(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullTime
	err := r.db.WithContext(ctx).Model(&models.Mention{}).Select("MAX(posted_at)").Scan(&latest).Error
	if err != nil {
		return time.Time{}, false, err
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}
