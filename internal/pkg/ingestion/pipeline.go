package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/idempotency"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
	"github.com/trogdorcult/burninator/internal/pkg/metrics"
	"github.com/trogdorcult/burninator/internal/pkg/scoring"
)

const (
	SourceWebhook = "webhook"
	SourcePull    = "pull"
	SourceRetry   = "retry"
)

// Outcome describes what happened to one candidate.
type Outcome string

const (
	OutcomeCredited         Outcome = "credited"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeOwnerNotFound    Outcome = "owner_not_found"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeError            Outcome = "error"
)

// Skipped reports outcomes that count as "skipped" in batch summaries.
func (o Outcome) Skipped() bool {
	switch o {
	case OutcomeAlreadyProcessed, OutcomeDuplicate, OutcomeOwnerNotFound, OutcomeInvalid:
		return true
	}
	return false
}

type Result struct {
	Outcome   Outcome `json:"outcome"`
	MentionID uint    `json:"mentionId,omitempty"`
	AccountID uint    `json:"accountId,omitempty"`
	Score     int     `json:"score,omitempty"`
}

// CacheInvalidator drops cached leaderboard pages after points change.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Pipeline is the single idempotent path shared by webhook and pull ingestion.
type Pipeline struct {
	repo        Repository
	ledger      *idempotency.Ledger
	invalidator CacheInvalidator
	resume      cache.Cache
	now         func() time.Time
}

func NewPipeline(repo Repository, ledger *idempotency.Ledger, invalidator CacheInvalidator) *Pipeline {
	return &Pipeline{repo: repo, ledger: ledger, invalidator: invalidator, now: time.Now}
}

// SetResumeStore enables paging through a backlog across several pull runs.
// Without it a run that hits the page limit fails without crediting anything.
func (p *Pipeline) SetResumeStore(c cache.Cache) {
	p.resume = c
}

// ProcessTweet normalizes a raw payload item and runs it through Process.
func (p *Pipeline) ProcessTweet(ctx context.Context, source string, tweet mentions.Tweet) (Result, error) {
	m, err := mentions.Normalize(tweet, p.now())
	if err != nil {
		metrics.MentionsIngested.WithLabelValues(source, string(OutcomeInvalid)).Inc()
		log.Warnf("[Ingestion] Skipping malformed mention %q: %v", tweet.ID, err)
		return Result{Outcome: OutcomeInvalid}, err
	}
	if m.TimestampMissing {
		log.Warnf("[Ingestion] Mention %s has no usable timestamp, using ingestion time", m.ID)
	}
	raw, err := json.Marshal(tweet)
	if err != nil {
		return Result{Outcome: OutcomeInvalid}, err
	}
	return p.Process(ctx, source, m, raw)
}

// Process applies one mention at most once.
func (p *Pipeline) Process(ctx context.Context, source string, m mentions.Mention, raw []byte) (Result, error) {
	res, err := p.process(ctx, m, raw)
	if err != nil {
		res.Outcome = OutcomeError
	}
	metrics.MentionsIngested.WithLabelValues(source, string(res.Outcome)).Inc()
	return res, err
}

func (p *Pipeline) process(ctx context.Context, m mentions.Mention, raw []byte) (Result, error) {
	done, err := p.ledger.IsProcessed(ctx, m.ID)
	if err != nil {
		return Result{}, err
	}
	if done {
		log.Debugf("[Ingestion] Event %s already processed", m.ID)
		return Result{Outcome: OutcomeAlreadyProcessed}, nil
	}

	if err := p.ledger.Begin(ctx, m.ID, raw); err != nil {
		return Result{}, err
	}

	res, err := p.apply(ctx, m)
	if err != nil {
		log.Errorf("[Ingestion] Error processing event %s: %v", m.ID, err)
		p.ledger.MarkFailed(ctx, m.ID, err)
		return Result{}, err
	}
	return res, nil
}

func (p *Pipeline) apply(ctx context.Context, m mentions.Mention) (Result, error) {
	account, err := p.repo.FindAccountByTwitterID(ctx, m.AuthorID)
	if errors.Is(err, ErrAccountNotFound) {
		log.Infof("[Ingestion] No account linked to twitter id %s, skipping %s", m.AuthorID, m.ID)
		if err := p.ledger.MarkProcessed(ctx, m.ID, idempotency.NoteOwnerNotFound); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeOwnerNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolve owner: %w", err)
	}

	exists, err := p.repo.MentionExists(ctx, m.ID)
	if err != nil {
		return Result{}, fmt.Errorf("check mention: %w", err)
	}
	if exists {
		if err := p.ledger.MarkProcessed(ctx, m.ID, idempotency.NoteDuplicate); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeDuplicate, AccountID: account.ID}, nil
	}

	score := scoring.Score(scoring.Metrics{
		Likes:       m.Likes,
		Retweets:    m.Retweets,
		Replies:     m.Replies,
		Quotes:      m.Quotes,
		Text:        m.Text,
		HasImage:    m.HasImage,
		HasVideo:    m.HasVideo,
		HasHashtags: m.HasHashtags,
	})

	row := &models.Mention{
		TweetID:         m.ID,
		AccountID:       account.ID,
		TweetURL:        m.URL,
		Content:         m.Text,
		HasImage:        m.HasImage,
		HasVideo:        m.HasVideo,
		Likes:           m.Likes,
		Retweets:        m.Retweets,
		Replies:         m.Replies,
		Quotes:          m.Quotes,
		Impressions:     m.Impressions,
		QualityScore:    score.Total,
		PointsAwarded:   score.Total,
		EngagementScore: score.Breakdown.Engagement,
		ContentScore:    score.Breakdown.Content,
		ViralityScore:   score.Breakdown.Virality,
		RewardTier:      scoring.RewardTier(score.Total),
		PostedAt:        m.CreatedAt,
	}

	credited, err := p.repo.CreditMention(ctx, row)
	if err != nil {
		return Result{}, fmt.Errorf("credit mention: %w", err)
	}

	if !credited {
		// A concurrent handler inserted the same tweet between our check and insert.
		if err := p.ledger.MarkProcessed(ctx, m.ID, idempotency.NoteDuplicate); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeDuplicate, AccountID: account.ID}, nil
	}

	if err := p.ledger.MarkProcessed(ctx, m.ID, ""); err != nil {
		// Points are already durable; a retry will find the mention and stop at the duplicate check.
		return Result{}, err
	}
	metrics.PointsAwarded.Add(float64(score.Total))

	if p.invalidator != nil {
		if err := p.invalidator.Invalidate(ctx); err != nil {
			log.Warnf("[Ingestion] Leaderboard cache invalidation failed: %v", err)
		}
	}

	log.Infof("[Ingestion] Credited tweet %s to account %d, score %d", m.ID, account.ID, score.Total)
	return Result{Outcome: OutcomeCredited, MentionID: row.ID, AccountID: account.ID, Score: score.Total}, nil
}
