package models

import "time"

// LeaderboardSnapshot is a derived ranking row. It is never read back as the
// source of truth; rankings are always recomputable from accounts and mentions.
type LeaderboardSnapshot struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AccountID      uint      `gorm:"not null;index:idx_snapshots_account_period,priority:1" json:"accountId"`
	Period         string    `gorm:"type:varchar(10);not null;index:idx_snapshots_account_period,priority:2;index:idx_snapshots_period_rank,priority:1" json:"period"`
	Rank           int       `gorm:"not null;index:idx_snapshots_period_rank,priority:2" json:"rank"`
	TotalPoints    int64     `gorm:"not null" json:"totalPoints"`
	TotalMentions  int64     `gorm:"not null" json:"totalMentions"`
	AverageQuality int       `gorm:"not null" json:"averageQuality"`
	PeriodStart    time.Time `gorm:"type:timestamp;not null" json:"periodStart"`
	PeriodEnd      time.Time `gorm:"type:timestamp;not null" json:"periodEnd"`
	SnapshotAt     time.Time `gorm:"autoCreateTime" json:"snapshotAt"`
}
