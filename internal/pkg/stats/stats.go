package stats

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/metrics"
)

const (
	CacheKey = "stats:global"
	CacheTTL = 60 * time.Second
)

// Global is the site-wide counter block shown on every page.
type Global struct {
	CultMembers     int64 `json:"cultMembers"`
	TotalOfferings  int64 `json:"totalOfferings"`
	ImagesGenerated int64 `json:"imagesGenerated"`
}

// Counter computes Global from the durable store.
type Counter interface {
	Count(ctx context.Context) (Global, error)
}

type gormCounter struct {
	db *gorm.DB
}

func NewCounter(db *gorm.DB) Counter {
	return &gormCounter{db: db}
}

func (g *gormCounter) Count(ctx context.Context) (Global, error) {
	var out Global
	db := g.db.WithContext(ctx)
	if err := db.Model(&models.Account{}).Count(&out.CultMembers).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.Account{}).Select("COALESCE(SUM(total_points), 0)").Scan(&out.TotalOfferings).Error; err != nil {
		return out, err
	}
	if err := db.Model(&models.GeneratedImage{}).Count(&out.ImagesGenerated).Error; err != nil {
		return out, err
	}
	return out, nil
}

// Service serves Global through the cache. Cache trouble is logged and
// otherwise ignored.
type Service struct {
	counter Counter
	cache   cache.Cache
}

func NewService(counter Counter, c cache.Cache) *Service {
	return &Service{counter: counter, cache: c}
}

func (s *Service) Get(ctx context.Context) (Global, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, CacheKey)
		switch {
		case err == nil:
			var cached Global
			if json.Unmarshal([]byte(raw), &cached) == nil {
				return cached, nil
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			metrics.CacheDegraded.WithLabelValues("stats_get").Inc()
			log.Warnf("[Stats] Cache read failed: %v", err)
		}
	}

	out, err := s.counter.Count(ctx)
	if err != nil {
		return Global{}, err
	}

	if s.cache != nil {
		if raw, jErr := json.Marshal(out); jErr == nil {
			if err := s.cache.Set(ctx, CacheKey, string(raw), CacheTTL); err != nil {
				log.Warnf("[Stats] Cache write failed: %v", err)
			}
		}
	}
	return out, nil
}
