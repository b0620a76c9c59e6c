package idempotency

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trogdorcult/burninator/app/models"
)

// MemoryRepository keeps ledger rows in process. It backs unit tests of the
// ledger and its callers. Like a database driver, writes fail once ctx is done.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID uint
	events map[string]*models.IngestionEvent
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[string]*models.IngestionEvent)}
}

func memKey(eventID, eventType string) string { return eventType + "|" + eventID }

func (m *MemoryRepository) GetEvent(_ context.Context, eventID, eventType string) (*models.IngestionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[memKey(eventID, eventType)]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

func (m *MemoryRepository) UpsertEvent(ctx context.Context, event *models.IngestionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey(event.EventID, event.EventType)
	if ev, ok := m.events[k]; ok {
		ev.RetryCount++
		ev.PayloadJSON = event.PayloadJSON
		ev.UpdatedAt = time.Now().UTC()
		return nil
	}
	m.nextID++
	cp := *event
	cp.ID = m.nextID
	cp.ReceivedAt = time.Now().UTC()
	cp.UpdatedAt = cp.ReceivedAt
	m.events[k] = &cp
	event.ID = cp.ID
	return nil
}

func (m *MemoryRepository) MarkEventProcessed(ctx context.Context, eventID, eventType, note string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[memKey(eventID, eventType)]; ok {
		now := time.Now().UTC()
		ev.Processed = true
		ev.ProcessedAt = &now
		ev.Error = note
		ev.UpdatedAt = now
	}
	return nil
}

func (m *MemoryRepository) MarkEventFailed(ctx context.Context, eventID, eventType, errText string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[memKey(eventID, eventType)]; ok {
		ev.Processed = false
		ev.Error = errText
		ev.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryRepository) ListUnprocessed(_ context.Context, eventType string, maxRetries, limit int) ([]models.IngestionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.IngestionEvent
	for _, ev := range m.events {
		if ev.EventType == eventType && !ev.Processed && ev.RetryCount < maxRetries {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports the number of stored events.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
