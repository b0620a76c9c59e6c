package leaderboard

import (
	"context"
	"fmt"
	"math"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/app/models"
)

const snapshotPageSize = 500

// SnapshotResult reports how many rows were written per period.
type SnapshotResult map[Period]int

// Snapshot persists the current ranking of every period and refreshes
// accounts.current_rank from the all-time ranking.
func (s *Service) Snapshot(ctx context.Context) (SnapshotResult, error) {
	now := s.now().UTC()
	result := SnapshotResult{}

	for _, p := range Periods {
		since, windowed := p.Window(now)
		var rows []models.LeaderboardSnapshot
		ranks := map[uint]int{}

		for offset := 0; ; offset += snapshotPageSize {
			var (
				entries []Entry
				err     error
			)
			if windowed {
				entries, err = s.repo.Window(ctx, since, offset, snapshotPageSize)
			} else {
				entries, err = s.repo.AllTime(ctx, offset, snapshotPageSize)
			}
			if err != nil {
				return result, fmt.Errorf("snapshot %s: %w", p, err)
			}
			for i, e := range entries {
				rank := offset + i + 1
				rows = append(rows, models.LeaderboardSnapshot{
					AccountID:      e.AccountID,
					Period:         string(p),
					Rank:           rank,
					TotalPoints:    e.Points,
					TotalMentions:  e.MentionCount,
					AverageQuality: int(math.Round(e.AverageQuality)),
					PeriodStart:    since,
					PeriodEnd:      now,
				})
				ranks[e.AccountID] = rank
			}
			if len(entries) < snapshotPageSize {
				break
			}
		}

		if err := s.repo.SaveSnapshots(ctx, rows); err != nil {
			return result, fmt.Errorf("save %s snapshot: %w", p, err)
		}
		if p == PeriodAllTime {
			if err := s.repo.UpdateCurrentRanks(ctx, ranks); err != nil {
				return result, fmt.Errorf("update current ranks: %w", err)
			}
		}
		result[p] = len(rows)
		log.Infof("[Leaderboard] Snapshot %s: %d rows", p, len(rows))
	}
	return result, nil
}
