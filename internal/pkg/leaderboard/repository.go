package leaderboard

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/trogdorcult/burninator/app/models"
)

var ErrAccountNotFound = errors.New("account not found")

// Entry is one ranked row.
type Entry struct {
	Rank           int     `json:"rank" gorm:"-"`
	AccountID      uint    `json:"accountId"`
	WalletAddress  string  `json:"walletAddress"`
	Username       *string `json:"username,omitempty"`
	TwitterHandle  *string `json:"twitterHandle,omitempty"`
	ProfileImage   *string `json:"profileImage,omitempty"`
	Points         int64   `json:"totalOfferings"`
	MentionCount   int64   `json:"totalMentions"`
	AverageQuality float64 `json:"averageQuality"`
}

// Repository computes rankings. Ordering is points descending, then account
// id ascending so that ties keep account creation order.
type Repository interface {
	AllTime(ctx context.Context, offset, limit int) ([]Entry, error)
	Window(ctx context.Context, since time.Time, offset, limit int) ([]Entry, error)
	AccountRank(ctx context.Context, accountID uint) (rank int, points int64, err error)
	SaveSnapshots(ctx context.Context, rows []models.LeaderboardSnapshot) error
	UpdateCurrentRanks(ctx context.Context, ranks map[uint]int) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

const entryColumns = "a.id AS account_id, a.wallet_address, a.username, a.twitter_handle, a.profile_image"
const entryGroupBy = "a.id, a.wallet_address, a.username, a.twitter_handle, a.profile_image"

func (r *gormRepository) AllTime(ctx context.Context, offset, limit int) ([]Entry, error) {
	var out []Entry
	err := r.db.WithContext(ctx).
		Table("accounts AS a").
		Select(entryColumns + ", a.total_points AS points, COUNT(m.id) AS mention_count, COALESCE(AVG(m.quality_score), 0) AS average_quality").
		Joins("LEFT JOIN mentions m ON m.account_id = a.id").
		Group(entryGroupBy + ", a.total_points").
		Order("a.total_points DESC, a.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (r *gormRepository) Window(ctx context.Context, since time.Time, offset, limit int) ([]Entry, error) {
	var out []Entry
	err := r.db.WithContext(ctx).
		Table("mentions AS m").
		Select(entryColumns+", SUM(m.points_awarded) AS points, COUNT(m.id) AS mention_count, AVG(m.quality_score) AS average_quality").
		Joins("JOIN accounts a ON a.id = m.account_id").
		Where("m.posted_at >= ?", since).
		Group(entryGroupBy).
		Order("points DESC, a.id ASC").
		Offset(offset).
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func (r *gormRepository) AccountRank(ctx context.Context, accountID uint) (int, int64, error) {
	var a models.Account
	err := r.db.WithContext(ctx).Select("id", "total_points").First(&a, accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, 0, err
	}

	var ahead int64
	err = r.db.WithContext(ctx).Model(&models.Account{}).
		Where("total_points > ? OR (total_points = ? AND id < ?)", a.TotalPoints, a.TotalPoints, a.ID).
		Count(&ahead).Error
	if err != nil {
		return 0, 0, err
	}
	return int(ahead) + 1, a.TotalPoints, nil
}

func (r *gormRepository) SaveSnapshots(ctx context.Context, rows []models.LeaderboardSnapshot) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

func (r *gormRepository) UpdateCurrentRanks(ctx context.Context, ranks map[uint]int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, rank := range ranks {
			if err := tx.Model(&models.Account{}).Where("id = ?", id).
				UpdateColumn("current_rank", rank).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
