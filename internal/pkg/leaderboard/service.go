package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/metrics"
)

const (
	VersionKey = "leaderboard:version"

	DefaultPageSize = 50
	MaxPageSize     = 100
	DefaultCacheTTL = 2 * time.Minute
	MinCacheTTL     = time.Minute
	MaxCacheTTL     = 5 * time.Minute
)

var (
	ErrInvalidPeriod = errors.New("invalid leaderboard period")
	ErrInvalidPage   = errors.New("invalid page or page size")
)

type Page struct {
	Period   Period    `json:"period"`
	Page     int       `json:"page"`
	PageSize int       `json:"limit"`
	Since    time.Time `json:"since,omitempty"`
	Entries  []Entry   `json:"entries"`
	Cached   bool      `json:"cached"`
}

// Service serves ranked pages through a short-lived cache. Pages are keyed by
// a version counter; bumping the counter invalidates every cached page at once.
type Service struct {
	repo  Repository
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewService(repo Repository, c cache.Cache, ttl time.Duration) *Service {
	if ttl < MinCacheTTL {
		ttl = MinCacheTTL
	}
	if ttl > MaxCacheTTL {
		ttl = MaxCacheTTL
	}
	return &Service{repo: repo, cache: c, ttl: ttl, now: time.Now}
}

func pageKey(version string, p Period, page, size int) string {
	return fmt.Sprintf("leaderboard:v%s:%s:%d:%d", version, p, page, size)
}

// GetRanked returns one page of the ranking for the period.
func (s *Service) GetRanked(ctx context.Context, p Period, page, pageSize int) (*Page, error) {
	if page < 1 || pageSize < 1 || pageSize > MaxPageSize {
		return nil, ErrInvalidPage
	}

	key := ""
	if version, ok := s.version(ctx); ok {
		key = pageKey(version, p, page, pageSize)
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var cached Page
			if jErr := json.Unmarshal([]byte(raw), &cached); jErr == nil {
				metrics.LeaderboardCache.WithLabelValues("hit").Inc()
				cached.Cached = true
				return &cached, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			metrics.CacheDegraded.WithLabelValues("leaderboard_get").Inc()
			log.Warnf("[Leaderboard] Cache read failed: %v", err)
			key = ""
		}
	}
	metrics.LeaderboardCache.WithLabelValues("miss").Inc()

	result, err := s.compute(ctx, p, page, pageSize)
	if err != nil {
		return nil, err
	}

	if key != "" {
		if raw, err := json.Marshal(result); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
				log.Warnf("[Leaderboard] Cache write failed: %v", err)
			}
		}
	}
	return result, nil
}

func (s *Service) compute(ctx context.Context, p Period, page, pageSize int) (*Page, error) {
	offset := (page - 1) * pageSize
	result := &Page{Period: p, Page: page, PageSize: pageSize}

	var (
		entries []Entry
		err     error
	)
	if since, windowed := p.Window(s.now()); windowed {
		result.Since = since
		entries, err = s.repo.Window(ctx, since, offset, pageSize)
	} else {
		entries, err = s.repo.AllTime(ctx, offset, pageSize)
	}
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s page %d: %w", p, page, err)
	}

	for i := range entries {
		entries[i].Rank = offset + i + 1
	}
	if entries == nil {
		entries = []Entry{}
	}
	result.Entries = entries
	return result, nil
}

// Top returns the all-time top n.
func (s *Service) Top(ctx context.Context, n int) ([]Entry, error) {
	page, err := s.GetRanked(ctx, PeriodAllTime, 1, n)
	if err != nil {
		return nil, err
	}
	return page.Entries, nil
}

// AccountRank is the all-time position of one account.
func (s *Service) AccountRank(ctx context.Context, accountID uint) (int, int64, error) {
	return s.repo.AccountRank(ctx, accountID)
}

// Invalidate drops every cached page.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	_, err := s.cache.Incr(ctx, VersionKey)
	return err
}

// version reports the current cache generation; ok is false when the cache
// cannot be used at all.
func (s *Service) version(ctx context.Context) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	raw, err := s.cache.Get(ctx, VersionKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "0", true
	}
	if err != nil {
		metrics.CacheDegraded.WithLabelValues("leaderboard_version").Inc()
		log.Warnf("[Leaderboard] Cache unavailable, reading from database: %v", err)
		return "", false
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		return "", false
	}
	return raw, true
}
