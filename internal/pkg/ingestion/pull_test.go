package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
)

func TestRunPullCountsOutcomes(t *testing.T) {
	h := newHarness()
	h.repo.addAccount(1, "4242")
	h.repo.failCredit = 1 // first creditable tweet fails

	// Pages are newest first; the run works through them oldest first.
	src := &pagedSource{pages: map[string]*mentions.MentionsPage{
		"": {Tweets: []mentions.Tweet{
			tweet("2", "4242", 3),
			tweet("2", "4242", 3),
			tweet("3", "stranger", 3),
		}, HasNextPage: true, NextCursor: "p2"},
		"p2": {Tweets: []mentions.Tweet{
			{ID: "4", Text: "no author"},
			tweet("1", "4242", 3),
		}},
	}}

	sum, err := h.p.RunPull(context.Background(), src, PullOptions{Handle: "trogdorcult"})
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Fetched)
	assert.Equal(t, 1, sum.Processed, "tweet 2")
	assert.Equal(t, 3, sum.Skipped, "malformed 4, stranger, repeated 2")
	assert.Equal(t, 1, sum.Errors, "tweet 1 failed but did not abort the batch")
	assert.Equal(t, []string{"", "p2"}, src.calls)
	assert.True(t, sum.Since.IsZero(), "no watermark on an empty store")

	// Next run retries the failed event and uses the watermark.
	src.pages = map[string]*mentions.MentionsPage{}
	sum, err = h.p.RunPull(context.Background(), src, PullOptions{Handle: "trogdorcult"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Retried)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 2, h.repo.mentionCount())
	assert.Equal(t, h.repo.mentionSum(1), h.repo.total(1))

	wantSince := time.Date(2024, 12, 10, 7, 0, 30, 0, time.UTC).Add(-watermarkOverlap)
	assert.Equal(t, wantSince, src.since[len(src.since)-1])
}

func TestRunPullFetchFailureProcessesNothing(t *testing.T) {
	h := newHarness()
	h.repo.addAccount(1, "4242")

	src := &pagedSource{
		pages: map[string]*mentions.MentionsPage{
			"": {Tweets: []mentions.Tweet{tweet("1", "4242", 3)}, HasNextPage: true, NextCursor: "p2"},
		},
		failOn:  "p2",
		failErr: context.DeadlineExceeded,
	}

	_, err := h.p.RunPull(context.Background(), src, PullOptions{Handle: "trogdorcult"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Zero(t, h.repo.mentionCount(), "watermark must not move past unfetched pages")
	assert.Zero(t, h.events.Len())
}

func TestRunPullStopsAtPageLimit(t *testing.T) {
	h := newHarness()
	pages := map[string]*mentions.MentionsPage{}
	// Every page points at itself; the cursor loop guard and page cap stop it.
	pages[""] = &mentions.MentionsPage{HasNextPage: true, NextCursor: "x"}
	pages["x"] = &mentions.MentionsPage{HasNextPage: true, NextCursor: "y"}
	pages["y"] = &mentions.MentionsPage{HasNextPage: true, NextCursor: "x"}
	src := &pagedSource{pages: pages}

	_, err := h.p.RunPull(context.Background(), src, PullOptions{Handle: "t", MaxPages: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "x", "y"}, src.calls)

	src.calls = nil
	pages["y"] = &mentions.MentionsPage{HasNextPage: true, NextCursor: "z"}
	pages["z"] = &mentions.MentionsPage{HasNextPage: true, NextCursor: "w"}
	_, err = h.p.RunPull(context.Background(), src, PullOptions{Handle: "t", MaxPages: 2})
	require.NoError(t, err)
	assert.Len(t, src.calls, 2)
}

func TestRunPullWorksOffBacklogAcrossRuns(t *testing.T) {
	h := newHarness()
	h.repo.addAccount(1, "4242")
	src := &timelineSource{tweets: []mentions.Tweet{
		tweetAt("10", "4242", "Tue Dec 10 07:00:30 +0000 2024"),
		tweetAt("9", "4242", "Mon Dec 09 07:00:30 +0000 2024"),
	}}
	opts := PullOptions{Handle: "trogdorcult", MaxPages: 1}
	ctx := context.Background()

	sum, err := h.p.RunPull(ctx, src, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	raw, err := h.cache.Get(ctx, resumeKey("trogdorcult"))
	require.NoError(t, err, "older pages must stay reachable")
	assert.Contains(t, raw, `"cursor":"1"`)

	sum, err = h.p.RunPull(ctx, src, opts)
	require.NoError(t, err)
	assert.True(t, sum.Since.IsZero(), "a backlog keeps the search window it started with")
	assert.Equal(t, 1, sum.Processed)
	_, err = h.cache.Get(ctx, resumeKey("trogdorcult"))
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	sum, err = h.p.RunPull(ctx, src, opts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 10, 7, 0, 30, 0, time.UTC).Add(-watermarkOverlap), sum.Since)
	assert.Zero(t, sum.Processed)

	assert.Equal(t, 2, h.repo.mentionCount())
	assert.Equal(t, h.repo.mentionSum(1), h.repo.total(1))
}

func TestRunPullPageLimitWithoutResumeStore(t *testing.T) {
	h := newHarness()
	h.p.SetResumeStore(nil)
	h.repo.addAccount(1, "4242")
	src := &timelineSource{tweets: []mentions.Tweet{
		tweetAt("10", "4242", "Tue Dec 10 07:00:30 +0000 2024"),
		tweetAt("9", "4242", "Mon Dec 09 07:00:30 +0000 2024"),
	}}

	_, err := h.p.RunPull(context.Background(), src, PullOptions{Handle: "t", MaxPages: 1})
	require.ErrorIs(t, err, ErrPageLimit)
	assert.Zero(t, h.repo.mentionCount(), "nothing is credited past an incomplete fetch")

	sum, err := h.p.RunPull(context.Background(), src, PullOptions{Handle: "t", MaxPages: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
}

func TestRunPullInterruptedBacklogStartsOver(t *testing.T) {
	h := newHarness()
	h.repo.addAccount(1, "4242")
	src := &timelineSource{tweets: []mentions.Tweet{
		tweetAt("10", "4242", "Tue Dec 10 07:00:30 +0000 2024"),
		tweetAt("9", "4242", "Mon Dec 09 07:00:30 +0000 2024"),
		tweetAt("8", "4242", "Sun Dec 08 07:00:30 +0000 2024"),
	}}
	opts := PullOptions{Handle: "t", MaxPages: 2}
	ctx, cancel := context.WithCancel(context.Background())
	h.repo.onLookup = cancel

	_, err := h.p.RunPull(ctx, src, opts)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.repo.mentionCount())
	raw, err := h.cache.Get(context.Background(), resumeKey("t"))
	require.NoError(t, err)
	assert.Contains(t, raw, `"cursor":""`, "the interrupted batch is read again")

	h.repo.onLookup = nil
	for i := 0; i < 2; i++ {
		_, err = h.p.RunPull(context.Background(), src, opts)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, h.repo.mentionCount())
	assert.Equal(t, h.repo.mentionSum(1), h.repo.total(1))
}

func TestCancelledApplyIsRetried(t *testing.T) {
	h := newHarness()
	h.repo.addAccount(1, "4242")
	ctx, cancel := context.WithCancel(context.Background())
	h.repo.onLookup = cancel

	_, err := h.p.ProcessTweet(ctx, SourceWebhook, tweet("500", "4242", 5))
	require.ErrorIs(t, err, context.Canceled)
	ev := h.event(t, "500")
	assert.False(t, ev.Processed)
	assert.NotEmpty(t, ev.Error, "failure is recorded after the caller went away")

	h.repo.onLookup = nil
	sum, err := h.p.RunPull(context.Background(), &pagedSource{}, PullOptions{Handle: "t"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Retried)
	assert.Equal(t, 1, h.repo.mentionCount())
	assert.True(t, h.event(t, "500").Processed)
}

func TestRetryPendingPicksUpAbandonedEvents(t *testing.T) {
	h := newHarness()
	h.repo.addAccount(1, "4242")
	ctx := context.Background()

	raw, err := json.Marshal(tweet("600", "4242", 5))
	require.NoError(t, err)
	require.NoError(t, h.p.ledger.Begin(ctx, "600", raw))

	n, err := h.p.RetryPending(ctx, DefaultMaxRetries, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "a fresh event may still be in flight")

	h.p.now = func() time.Time { return time.Now().Add(inFlightTimeout + time.Minute) }
	n, err = h.p.RetryPending(ctx, DefaultMaxRetries, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, h.repo.mentionCount())
	assert.True(t, h.event(t, "600").Processed)
}
