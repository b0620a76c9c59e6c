package ingestion

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
)

type memRepo struct {
	mu       sync.Mutex
	accounts map[uint]*models.Account
	mentions map[string]*models.Mention
	nextID   uint

	// failCredit makes the next n CreditMention calls fail.
	failCredit int
	lookupErr  error
	// onLookup runs at the start of every owner lookup.
	onLookup func()
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: map[uint]*models.Account{}, mentions: map[string]*models.Mention{}}
}

func (r *memRepo) addAccount(id uint, twitterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tid := twitterID
	r.accounts[id] = &models.Account{ID: id, WalletAddress: "wallet", TwitterID: &tid}
}

func (r *memRepo) total(id uint) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].TotalPoints
}

func (r *memRepo) mentionSum(id uint) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, m := range r.mentions {
		if m.AccountID == id {
			sum += int64(m.PointsAwarded)
		}
	}
	return sum
}

func (r *memRepo) mentionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mentions)
}

func (r *memRepo) FindAccountByTwitterID(ctx context.Context, twitterID string) (*models.Account, error) {
	if r.onLookup != nil {
		r.onLookup()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	for _, a := range r.accounts {
		if a.TwitterID != nil && *a.TwitterID == twitterID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (r *memRepo) MentionExists(_ context.Context, tweetID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.mentions[tweetID]
	return ok, nil
}

func (r *memRepo) CreditMention(_ context.Context, m *models.Mention) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCredit > 0 {
		r.failCredit--
		return false, errors.New("deadlock detected")
	}
	if _, ok := r.mentions[m.TweetID]; ok {
		return false, nil
	}
	r.nextID++
	m.ID = r.nextID
	cp := *m
	r.mentions[m.TweetID] = &cp
	r.accounts[m.AccountID].TotalPoints += int64(m.PointsAwarded)
	return true, nil
}

func (r *memRepo) LatestMentionTime(context.Context) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest time.Time
	for _, m := range r.mentions {
		if m.PostedAt.After(latest) {
			latest = m.PostedAt
		}
	}
	return latest, !latest.IsZero(), nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

// pagedSource serves fixed pages keyed by cursor.
type pagedSource struct {
	mu      sync.Mutex
	pages   map[string]*mentions.MentionsPage
	failOn  string
	calls   []string
	since   []time.Time
	failErr error
}

func (s *pagedSource) SearchMentions(_ context.Context, _ string, since time.Time, cursor string) (*mentions.MentionsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, cursor)
	s.since = append(s.since, since)
	if s.failErr != nil && cursor == s.failOn {
		return nil, s.failErr
	}
	if p, ok := s.pages[cursor]; ok {
		return p, nil
	}
	return &mentions.MentionsPage{}, nil
}

func intp(v int) *int { return &v }

func tweet(id, author string, likes int) mentions.Tweet {
	return mentions.Tweet{
		ID:        id,
		Text:      "All hail Trogdor the Burninator, scourge of thatched roofs",
		CreatedAt: "Tue Dec 10 07:00:30 +0000 2024",
		LikeCount: intp(likes),
		Author:    &mentions.Author{ID: author},
	}
}

// timelineSource serves stored tweets newest first, one per page, filtered by
// since the way the search API filters by start time.
type timelineSource struct {
	mu     sync.Mutex
	tweets []mentions.Tweet
}

func (s *timelineSource) SearchMentions(_ context.Context, _ string, since time.Time, cursor string) (*mentions.MentionsPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var visible []mentions.Tweet
	for _, t := range s.tweets {
		at, err := time.Parse(time.RubyDate, t.CreatedAt)
		if err != nil {
			return nil, err
		}
		if since.IsZero() || !at.Before(since) {
			visible = append(visible, t)
		}
	}
	i := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, err
		}
		i = n
	}
	if i >= len(visible) {
		return &mentions.MentionsPage{}, nil
	}
	page := &mentions.MentionsPage{Tweets: []mentions.Tweet{visible[i]}}
	if i+1 < len(visible) {
		page.HasNextPage = true
		page.NextCursor = strconv.Itoa(i + 1)
	}
	return page, nil
}

func tweetAt(id, author, createdAt string) mentions.Tweet {
	t := tweet(id, author, 3)
	t.CreatedAt = createdAt
	return t
}
