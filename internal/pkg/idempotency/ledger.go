package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/metrics"
)

const (
	ProcessedKeyPrefix = "webhook:processed:"
	ProcessedTTL       = 24 * time.Hour

	NoteOwnerNotFound = "owner_not_found"
	NoteDuplicate     = "duplicate_mention"

	// failureWriteTimeout bounds the failure write, which runs detached from
	// the caller so a cancelled request still leaves the event retryable.
	failureWriteTimeout = 5 * time.Second
)

// Ledger records which external events have been durably applied. The cache
// only short-circuits positive answers; a cold or failing cache always falls
// back to the repository.
type Ledger struct {
	cache     cache.Cache
	repo      Repository
	eventType string
	source    string
}

func NewLedger(c cache.Cache, repo Repository, source, eventType string) *Ledger {
	return &Ledger{cache: c, repo: repo, source: source, eventType: eventType}
}

func (l *Ledger) EventType() string { return l.eventType }

func fastKey(eventID string) string {
	return ProcessedKeyPrefix + eventID
}

// IsProcessed checks the fast layer first, then the durable record.
func (l *Ledger) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if l.cache != nil {
		_, err := l.cache.Get(ctx, fastKey(eventID))
		switch {
		case err == nil:
			return true, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			metrics.CacheDegraded.WithLabelValues("ledger_get").Inc()
			log.Warnf("[Ledger] Cache lookup failed for %s, using database: %v", eventID, err)
		}
	}

	ev, err := l.repo.GetEvent(ctx, eventID, l.eventType)
	if errors.Is(err, ErrEventNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s: %w", eventID, err)
	}
	if ev.Processed {
		l.remember(ctx, eventID)
	}
	return ev.Processed, nil
}

// Begin records that processing of eventID started.
func (l *Ledger) Begin(ctx context.Context, eventID string, payload []byte) error {
	ev := &models.IngestionEvent{
		EventID:     eventID,
		EventType:   l.eventType,
		Source:      l.source,
		PayloadJSON: string(payload),
	}
	if err := l.repo.UpsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("ledger begin %s: %w", eventID, err)
	}
	return nil
}

// MarkProcessed finalizes the durable record, then the fast layer.
func (l *Ledger) MarkProcessed(ctx context.Context, eventID, note string) error {
	if err := l.repo.MarkEventProcessed(ctx, eventID, l.eventType, note); err != nil {
		return fmt.Errorf("ledger mark processed %s: %w", eventID, err)
	}
	l.remember(ctx, eventID)
	return nil
}

// MarkFailed leaves the event retryable with the error recorded.
func (l *Ledger) MarkFailed(ctx context.Context, eventID string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	if err := l.repo.MarkEventFailed(ctx, eventID, l.eventType, cause.Error()); err != nil {
		log.Errorf("[Ledger] Could not record failure for %s: %v (original error: %v)", eventID, err, cause)
	}
}

// Pending lists failed events that are still eligible for another attempt.
func (l *Ledger) Pending(ctx context.Context, maxRetries, limit int) ([]models.IngestionEvent, error) {
	return l.repo.ListUnprocessed(ctx, l.eventType, maxRetries, limit)
}

func (l *Ledger) remember(ctx context.Context, eventID string) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, fastKey(eventID), "1", ProcessedTTL); err != nil {
		metrics.CacheDegraded.WithLabelValues("ledger_set").Inc()
		log.Warnf("[Ledger] Could not cache processed marker for %s: %v", eventID, err)
	}
}
