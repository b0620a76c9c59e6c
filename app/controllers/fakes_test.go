package controllers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/app/repository"
	"github.com/trogdorcult/burninator/internal/pkg/ingestion"
	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
)

// store is one in-memory backing for the account, mention, pipeline and
// leaderboard repositories so that a test can observe every side effect.
type store struct {
	mu       sync.Mutex
	accounts map[uint]*models.Account
	mentions map[string]*models.Mention
	nextID   uint
}

func newStore() *store {
	return &store{accounts: map[uint]*models.Account{}, mentions: map[string]*models.Mention{}}
}

func strp(s string) *string { return &s }

func (s *store) copyOf(a *models.Account) *models.Account {
	cp := *a
	return &cp
}

// accounts

func (s *store) GetByID(_ context.Context, id uint) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.copyOf(a), nil
}

func (s *store) GetByWallet(_ context.Context, wallet string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.WalletAddress == wallet {
			return s.copyOf(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *store) SignIn(_ context.Context, wallet string) (*models.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, a := range s.accounts {
		if a.WalletAddress == wallet {
			a.LastActiveAt = &now
			return s.copyOf(a), false, nil
		}
	}
	s.nextID++
	a := &models.Account{ID: s.nextID, WalletAddress: wallet, LastActiveAt: &now, CreatedAt: now}
	s.accounts[a.ID] = a
	return s.copyOf(a), true, nil
}

func (s *store) UpdateUsername(_ context.Context, id uint, username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.Username = strp(username)
	return s.copyOf(a), nil
}

func (s *store) LinkTwitter(_ context.Context, id uint, link repository.TwitterLink) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	for _, other := range s.accounts {
		if other.ID == id {
			continue
		}
		if (other.TwitterHandle != nil && *other.TwitterHandle == link.Handle) ||
			(other.TwitterID != nil && *other.TwitterID == link.TwitterID) {
			return nil, repository.ErrAlreadyLinked
		}
	}
	a.TwitterHandle = strp(link.Handle)
	a.TwitterID = strp(link.TwitterID)
	a.IsVerified = link.TwitterID != ""
	return s.copyOf(a), nil
}

func (s *store) UnlinkTwitter(_ context.Context, id uint) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.TwitterHandle, a.TwitterID, a.IsVerified = nil, nil, false
	return s.copyOf(a), nil
}

func (s *store) Stats(_ context.Context, id uint) (*repository.AccountStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := &repository.AccountStats{}
	var sum int
	for _, m := range s.mentions {
		if m.AccountID == id {
			out.TotalMentions++
			sum += m.QualityScore
		}
	}
	if out.TotalMentions > 0 {
		out.AverageScore = float64(sum) / float64(out.TotalMentions)
	}
	return out, nil
}

func (s *store) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.accounts)), nil
}

func (s *store) PointDrift(context.Context) ([]repository.PointDrift, error) { return nil, nil }
func (s *store) RepairPoints(context.Context, uint) error                   { return nil }

// mentions

func (s *store) RecentByAccount(_ context.Context, accountID uint, limit int) ([]models.Mention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Mention
	for _, m := range s.mentions {
		if m.AccountID == accountID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.After(out[j].PostedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *store) CountByAccount(ctx context.Context, accountID uint) (int64, error) {
	st, err := s.Stats(ctx, accountID)
	return st.TotalMentions, err
}

// pipeline

func (s *store) FindAccountByTwitterID(_ context.Context, twitterID string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.TwitterID != nil && *a.TwitterID == twitterID {
			return s.copyOf(a), nil
		}
	}
	return nil, ingestion.ErrAccountNotFound
}

func (s *store) MentionExists(_ context.Context, tweetID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mentions[tweetID]
	return ok, nil
}

func (s *store) CreditMention(_ context.Context, m *models.Mention) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mentions[m.TweetID]; ok {
		return false, nil
	}
	m.ID = uint(len(s.mentions) + 1)
	cp := *m
	s.mentions[m.TweetID] = &cp
	s.accounts[m.AccountID].TotalPoints += int64(m.PointsAwarded)
	return true, nil
}

func (s *store) LatestMentionTime(context.Context) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, m := range s.mentions {
		if m.PostedAt.After(latest) {
			latest = m.PostedAt
		}
	}
	return latest, !latest.IsZero(), nil
}

// leaderboard

func (s *store) ranked() []leaderboard.Entry {
	var out []leaderboard.Entry
	for _, a := range s.accounts {
		out = append(out, leaderboard.Entry{AccountID: a.ID, WalletAddress: a.WalletAddress, Points: a.TotalPoints})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Points != out[j].Points {
			return out[i].Points > out[j].Points
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out
}

func (s *store) AllTime(_ context.Context, offset, limit int) ([]leaderboard.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.ranked()
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *store) Window(ctx context.Context, _ time.Time, offset, limit int) ([]leaderboard.Entry, error) {
	return s.AllTime(ctx, offset, limit)
}

func (s *store) AccountRank(_ context.Context, id uint) (int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.ranked() {
		if e.AccountID == id {
			return i + 1, e.Points, nil
		}
	}
	return 0, 0, leaderboard.ErrAccountNotFound
}

func (s *store) SaveSnapshots(context.Context, []models.LeaderboardSnapshot) error { return nil }
func (s *store) UpdateCurrentRanks(context.Context, map[uint]int) error             { return nil }

type fakeTwitter struct {
	users map[string]*mentions.User
}

func (f fakeTwitter) UserByUsername(_ context.Context, handle string) (*mentions.User, error) {
	if u, ok := f.users[handle]; ok {
		return u, nil
	}
	return nil, mentions.ErrUserNotFound
}

type fakeSource struct {
	tweets []mentions.Tweet
	err    error
}

func (f fakeSource) SearchMentions(context.Context, string, time.Time, string) (*mentions.MentionsPage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &mentions.MentionsPage{Tweets: f.tweets}, nil
}
