package models

import "time"

const (
	GENERATION_PENDING    = "pending"
	GENERATION_PROCESSING = "processing"
	GENERATION_COMPLETED  = "completed"
	GENERATION_FAILED     = "failed"
)

type GeneratedImage struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AccountID    uint      `gorm:"not null;index" json:"accountId"`
	Prompt       string    `gorm:"type:text;not null" json:"prompt"`
	ImageURL     string    `gorm:"type:varchar(1000);not null" json:"imageUrl"`
	ThumbnailURL string    `gorm:"type:varchar(1000);default:null" json:"thumbnailUrl,omitempty"`
	StoredKey    string    `gorm:"type:varchar(255);default:null" json:"-"`
	ProviderID   string    `gorm:"type:varchar(100);not null;uniqueIndex:ux_generated_images_provider_id" json:"replicateId"`
	Model        string    `gorm:"type:varchar(100)" json:"model"`
	Status       string    `gorm:"type:varchar(20);not null;index" json:"status"`
	Width        int       `gorm:"default:0" json:"width,omitempty"`
	Height       int       `gorm:"default:0" json:"height,omitempty"`
	Downloads    int       `gorm:"default:0" json:"downloads"`
	GeneratedAt  time.Time `gorm:"autoCreateTime;index" json:"generatedAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"-"`
}
