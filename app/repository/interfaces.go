package repository

import (
	"context"
	"errors"

	"github.com/trogdorcult/burninator/app/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyLinked = errors.New("social account already linked to another wallet")
)

// AccountRepository defines the account operations used by the API and CLI
type AccountRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetByWallet(ctx context.Context, wallet string) (*models.Account, error)
	// SignIn creates the account on first sign-in, otherwise touches last activity.
	SignIn(ctx context.Context, wallet string) (*models.Account, bool, error)
	UpdateUsername(ctx context.Context, id uint, username string) (*models.Account, error)
	LinkTwitter(ctx context.Context, id uint, link TwitterLink) (*models.Account, error)
	UnlinkTwitter(ctx context.Context, id uint) (*models.Account, error)
	Stats(ctx context.Context, id uint) (*AccountStats, error)
	Count(ctx context.Context) (int64, error)
	// PointDrift lists accounts whose total differs from the sum of their mentions.
	PointDrift(ctx context.Context) ([]PointDrift, error)
	RepairPoints(ctx context.Context, id uint) error
}

// MentionRepository defines read access to scored mentions
type MentionRepository interface {
	RecentByAccount(ctx context.Context, accountID uint, limit int) ([]models.Mention, error)
	CountByAccount(ctx context.Context, accountID uint) (int64, error)
}

// GeneratedImageRepository defines the generated image operations
type GeneratedImageRepository interface {
	Create(ctx context.Context, img *models.GeneratedImage) error
	GetByID(ctx context.Context, id uint) (*models.GeneratedImage, error)
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.GeneratedImage, error)
	UpdateStored(ctx context.Context, id uint, fields map[string]any) error
	CountByAccount(ctx context.Context, accountID uint) (int64, error)
}

// TwitterLink is what linking a social account writes.
type TwitterLink struct {
	Handle       string
	TwitterID    string
	ProfileImage string
}

// AccountStats are the profile aggregates.
type AccountStats struct {
	TotalMentions int64   `json:"totalMentions"`
	AverageScore  float64 `json:"averageScore"`
	TotalImages   int64   `json:"totalImages"`
}

// PointDrift is one account failing total_points == SUM(points_awarded).
type PointDrift struct {
	AccountID     uint   `json:"accountId"`
	WalletAddress string `json:"walletAddress"`
	TotalPoints   int64  `json:"totalPoints"`
	MentionPoints int64  `json:"mentionPoints"`
}
