package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Account is a participant identified by wallet address. TotalPoints is only
// ever changed by the ingestion pipeline's atomic increment.
type Account struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	WalletAddress string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_accounts_wallet" json:"walletAddress" validate:"required,min=32,max=64"`
	Username      *string    `gorm:"type:varchar(50);default:null" json:"username,omitempty" validate:"omitempty,min=2,max=50"`
	TwitterHandle *string    `gorm:"type:varchar(50);default:null;uniqueIndex:ux_accounts_twitter_handle" json:"twitterHandle,omitempty"`
	TwitterID     *string    `gorm:"type:varchar(32);default:null;uniqueIndex:ux_accounts_twitter_id" json:"twitterId,omitempty"`
	ProfileImage  *string    `gorm:"type:varchar(500);default:null" json:"profileImage,omitempty"`
	TotalPoints   int64      `gorm:"not null;default:0;index" json:"totalOfferings"`
	CurrentRank   *int       `gorm:"default:null;index" json:"currentRank,omitempty"`
	IsVerified    bool       `gorm:"default:false" json:"isVerified"`
	LastActiveAt  *time.Time `gorm:"type:timestamp;default:null" json:"lastActive,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"joinedAt"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"-"`
}

func (a *Account) Validate() error {
	v := validator.New()

	return v.Struct(a)
}

// NormalizeWallet is the canonical stored form of a wallet address.
func NormalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DisplayName falls back from username to handle to a shortened wallet.
func (a *Account) DisplayName() string {
	if a.Username != nil && *a.Username != "" {
		return *a.Username
	}
	if a.TwitterHandle != nil && *a.TwitterHandle != "" {
		return "@" + *a.TwitterHandle
	}
	w := a.WalletAddress
	if len(w) > 10 {
		return w[:4] + "..." + w[len(w)-4:]
	}
	return w
}
