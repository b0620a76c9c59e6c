package models

import "time"

const (
	IngestionSourceTwitter = "twitter"

	// EventTypeTwitterMention is shared by webhook and pull ingestion so both
	// paths dedupe against the same ledger row.
	EventTypeTwitterMention = "twitter.mention"
)

// IngestionEvent stores externally delivered events with deduplication
// metadata for idempotent processing.
type IngestionEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EventID     string     `gorm:"type:varchar(191);not null;index:ux_ingestion_events_event,unique,priority:1" json:"eventId"`
	EventType   string     `gorm:"type:varchar(100);not null;index:ux_ingestion_events_event,unique,priority:2" json:"eventType"`
	Source      string     `gorm:"type:varchar(20);not null;index" json:"source"`
	PayloadJSON string     `gorm:"type:text;not null" json:"payload"`
	Processed   bool       `gorm:"not null;default:false;index" json:"processed"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"processedAt,omitempty"`
	RetryCount  int        `gorm:"not null;default:0" json:"retryCount"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	ReceivedAt  time.Time  `gorm:"autoCreateTime;index" json:"receivedAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}
