package idempotency

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trogdorcult/burninator/app/models"
)

var ErrEventNotFound = errors.New("ingestion event not found")

// Repository is the durable layer of the ledger.
type Repository interface {
	GetEvent(ctx context.Context, eventID, eventType string) (*models.IngestionEvent, error)
	// UpsertEvent inserts the event or, if it already exists, increments its retry count.
	UpsertEvent(ctx context.Context, event *models.IngestionEvent) error
	MarkEventProcessed(ctx context.Context, eventID, eventType, note string) error
	MarkEventFailed(ctx context.Context, eventID, eventType, errText string) error
	ListUnprocessed(ctx context.Context, eventType string, maxRetries, limit int) ([]models.IngestionEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetEvent(ctx context.Context, eventID, eventType string) (*models.IngestionEvent, error) {
	var ev models.IngestionEvent
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND event_type = ?", eventID, eventType).
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *gormRepository) UpsertEvent(ctx context.Context, event *models.IngestionEvent) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "event_id"},
			{Name: "event_type"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"retry_count":  gorm.Expr("ingestion_events.retry_count + 1"),
			"payload_json": event.PayloadJSON,
			"updated_at":   time.Now().UTC(),
		}),
	}).Create(event).Error
}

func (r *gormRepository) MarkEventProcessed(ctx context.Context, eventID, eventType, note string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&models.IngestionEvent{}).
		Where("event_id = ? AND event_type = ?", eventID, eventType).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": &now,
			"error":        note,
		}).Error
}

func (r *gormRepository) MarkEventFailed(ctx context.Context, eventID, eventType, errText string) error {
	return r.db.WithContext(ctx).Model(&models.IngestionEvent{}).
		Where("event_id = ? AND event_type = ?", eventID, eventType).
		Updates(map[string]interface{}{
			"processed": false,
			"error":     errText,
		}).Error
}

func (r *gormRepository) ListUnprocessed(ctx context.Context, eventType string, maxRetries, limit int) ([]models.IngestionEvent, error) {
	var events []models.IngestionEvent
	err := r.db.WithContext(ctx).
		Where("event_type = ? AND processed = ? AND retry_count < ?", eventType, false, maxRetries).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
