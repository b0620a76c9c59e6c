package models

import "time"

// Mention is a scored social post. Rows are written once and never updated.
type Mention struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TweetID         string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_mentions_tweet_id" json:"tweetId"`
	AccountID       uint      `gorm:"not null;index" json:"accountId"`
	TweetURL        string    `gorm:"type:varchar(255);not null" json:"tweetUrl"`
	Content         string    `gorm:"type:text;not null" json:"content"`
	HasImage        bool      `gorm:"default:false" json:"hasImage"`
	HasVideo        bool      `gorm:"default:false" json:"hasVideo"`
	Likes           int       `gorm:"not null;default:0" json:"likes"`
	Retweets        int       `gorm:"not null;default:0" json:"retweets"`
	Replies         int       `gorm:"not null;default:0" json:"replies"`
	Quotes          int       `gorm:"not null;default:0" json:"quotes"`
	Impressions     int       `gorm:"not null;default:0" json:"impressions"`
	QualityScore    int       `gorm:"not null" json:"qualityScore"`
	PointsAwarded   int       `gorm:"not null;index" json:"pointsAwarded"`
	EngagementScore int       `gorm:"not null;default:0" json:"engagementScore"`
	ContentScore    int       `gorm:"not null;default:0" json:"contentScore"`
	ViralityScore   int       `gorm:"not null;default:0" json:"viralityScore"`
	RewardTier      string    `gorm:"type:varchar(20);not null;default:'peasant'" json:"rewardTier"`
	PostedAt        time.Time `gorm:"type:timestamp;not null;index" json:"createdAt"`
	ProcessedAt     time.Time `gorm:"autoCreateTime" json:"processedAt"`
}
