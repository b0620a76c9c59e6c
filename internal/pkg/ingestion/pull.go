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
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
	"github.com/trogdorcult/burninator/internal/pkg/metrics"
)

const (
	DefaultMaxPages   = 10
	DefaultMaxRetries = 5
	retryBatchSize    = 50

	ResumeKeyPrefix = "ingestion:pull:resume:"
	ResumeTTL       = 7 * 24 * time.Hour

	// inFlightTimeout is how long an event may sit without an outcome before a
	// retry pass treats its handler as gone.
	inFlightTimeout = 10 * time.Minute
	// watermarkOverlap re-reads a short window before the newest stored
	// mention; the ledger drops the repeats.
	watermarkOverlap = time.Minute
)

// Source fetches pages of mentions of the tracked handle.
type Source interface {
	SearchMentions(ctx context.Context, handle string, since time.Time, cursor string) (*mentions.MentionsPage, error)
}

// Summary holds the per-run counters of a pull.
type Summary struct {
	Fetched   int       `json:"total"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Errors    int       `json:"errors"`
	Retried   int       `json:"retried"`
	Since     time.Time `json:"since,omitempty"`
}

func (s *Summary) add(o Outcome) {
	switch {
	case o == OutcomeCredited:
		s.Processed++
	case o.Skipped():
		s.Skipped++
	default:
		s.Errors++
	}
}

type PullOptions struct {
	Handle     string
	MaxPages   int
	MaxRetries int
}

// ErrPageLimit is returned when a run reaches MaxPages and no resume store is
// configured to carry the remaining pages over to the next run.
var ErrPageLimit = errors.New("page limit reached before the end of the result set")

// pullResume marks pages that still have to be ingested: everything from
// Cursor onward of the search that started at Since. Pages before Cursor have
// been run through the pipeline.
type pullResume struct {
	Since  time.Time `json:"since"`
	Cursor string    `json:"cursor"`
}

func resumeKey(handle string) string {
	return ResumeKeyPrefix + handle
}

// RunPull performs one pull-mode ingestion run. All pages of a run are fetched
// before any candidate is processed, so a failed or timed-out fetch leaves the
// watermark where it was. A backlog larger than MaxPages is worked off over
// several runs from a stored cursor; the watermark is not consulted until the
// backlog is done.
func (p *Pipeline) RunPull(ctx context.Context, src Source, opts PullOptions) (Summary, error) {
	start := time.Now()
	defer func() { metrics.PullRunDuration.Observe(time.Since(start).Seconds()) }()

	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}

	var summary Summary

	retried, err := p.RetryPending(ctx, opts.MaxRetries, &summary)
	if err != nil {
		log.Warnf("[Ingestion] Could not list pending events: %v", err)
	}
	summary.Retried = retried

	resume, resuming, err := p.loadResume(ctx, opts.Handle)
	if err != nil {
		return summary, fmt.Errorf("read resume cursor: %w", err)
	}
	if !resuming {
		latest, ok, err := p.repo.LatestMentionTime(ctx)
		if err != nil {
			return summary, fmt.Errorf("read watermark: %w", err)
		}
		if ok {
			resume.Since = latest.Add(-watermarkOverlap)
		}
	}
	summary.Since = resume.Since

	tweets, next, err := fetchPages(ctx, src, opts.Handle, resume.Since, resume.Cursor, opts.MaxPages)
	if err != nil {
		return summary, fmt.Errorf("fetch mentions: %w", err)
	}
	summary.Fetched = len(tweets)

	if next != "" {
		if p.resume == nil {
			return summary, fmt.Errorf("fetch mentions: %w (%d pages)", ErrPageLimit, opts.MaxPages)
		}
		if !resuming {
			// Crediting the newest pages moves the watermark; the older pages
			// must be reachable before that happens.
			if err := p.saveResume(ctx, opts.Handle, resume); err != nil {
				return summary, fmt.Errorf("save resume cursor: %w", err)
			}
		}
		log.Warnf("[Ingestion] Stopped after %d pages, continuing from cursor %q next run", opts.MaxPages, next)
	}

	if len(tweets) == 0 {
		log.Infof("[Ingestion] No new mentions since %v", summary.Since)
	}

	// Sources return newest first. Oldest first keeps the watermark below any
	// candidate an interrupted run did not reach.
	for i := len(tweets) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		tweet := tweets[i]
		res, err := p.ProcessTweet(ctx, SourcePull, tweet)
		if err != nil && res.Outcome != OutcomeInvalid {
			log.Errorf("[Ingestion] Tweet %s failed: %v", tweet.ID, err)
		}
		summary.add(res.Outcome)
	}

	switch {
	case next != "":
		if err := p.saveResume(ctx, opts.Handle, pullResume{Since: resume.Since, Cursor: next}); err != nil {
			log.Warnf("[Ingestion] Could not advance resume cursor, pages are fetched again next run: %v", err)
		}
	case resuming:
		if err := p.resume.Del(ctx, resumeKey(opts.Handle)); err != nil {
			log.Warnf("[Ingestion] Could not clear resume cursor: %v", err)
		}
	}

	log.Infof("[Ingestion] Pull summary: %d fetched, %d processed, %d skipped, %d errors, %d retried",
		summary.Fetched, summary.Processed, summary.Skipped, summary.Errors, summary.Retried)
	return summary, nil
}

// fetchPages reads up to maxPages pages starting at cursor. next is non-empty
// when the result set continues past the last page read.
func fetchPages(ctx context.Context, src Source, handle string, since time.Time, cursor string, maxPages int) ([]mentions.Tweet, string, error) {
	var (
		out  []mentions.Tweet
		seen = map[string]bool{}
	)
	if cursor != "" {
		seen[cursor] = true
	}
	for page := 0; page < maxPages; page++ {
		resp, err := src.SearchMentions(ctx, handle, since, cursor)
		if err != nil {
			return nil, "", err
		}
		out = append(out, resp.Items()...)
		next := resp.Cursor()
		if next == "" || seen[next] {
			return out, "", nil
		}
		seen[next] = true
		cursor = next
	}
	return out, cursor, nil
}

func (p *Pipeline) loadResume(ctx context.Context, handle string) (pullResume, bool, error) {
	var r pullResume
	if p.resume == nil {
		return r, false, nil
	}
	raw, err := p.resume.Get(ctx, resumeKey(handle))
	if errors.Is(err, cache.ErrCacheMiss) {
		return r, false, nil
	}
	if err != nil {
		// Falling back to the watermark could skip the unread part of a backlog.
		return r, false, err
	}
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		log.Warnf("[Ingestion] Discarding unreadable resume cursor %q: %v", raw, err)
		return pullResume{}, false, nil
	}
	return r, true, nil
}

func (p *Pipeline) saveResume(ctx context.Context, handle string, r pullResume) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return p.resume.Set(ctx, resumeKey(handle), string(raw), ResumeTTL)
}

// RetryPending re-runs failed ledger events from their stored payloads. An
// event that never recorded an outcome is taken as abandoned once it has been
// idle for inFlightTimeout.
func (p *Pipeline) RetryPending(ctx context.Context, maxRetries int, summary *Summary) (int, error) {
	events, err := p.ledger.Pending(ctx, maxRetries, retryBatchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ev := range events {
		if ev.Error == "" && !p.abandoned(ev) {
			continue
		}
		var tweet mentions.Tweet
		if err := json.Unmarshal([]byte(ev.PayloadJSON), &tweet); err != nil {
			log.Warnf("[Ingestion] Stored payload for %s is unreadable: %v", ev.EventID, err)
			continue
		}
		res, err := p.ProcessTweet(ctx, SourceRetry, tweet)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("[Ingestion] Retry of %s failed (attempt %d): %v", ev.EventID, ev.RetryCount+1, err)
		}
		if summary != nil {
			summary.add(res.Outcome)
		}
		n++
	}
	return n, nil
}

func (p *Pipeline) abandoned(ev models.IngestionEvent) bool {
	last := ev.UpdatedAt
	if ev.ReceivedAt.After(last) {
		last = ev.ReceivedAt
	}
	return p.now().Sub(last) > inFlightTimeout
}
