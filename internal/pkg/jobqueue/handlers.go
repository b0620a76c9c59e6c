package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/ingestion"
	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
)

// ImagePersister copies a generated image into durable storage.
type ImagePersister interface {
	Persist(ctx context.Context, imageID uint) error
}

// Handlers are the domain services behind each job type. Nil fields leave
// the corresponding job type unregistered.
type Handlers struct {
	Persister   ImagePersister
	Leaderboard *leaderboard.Service
	Pipeline    *ingestion.Pipeline
	Source      ingestion.Source
	Pull        ingestion.PullOptions
}

// RegisterHandlers binds every configured job type on q.
func RegisterHandlers(q *Queue, h Handlers) {
	if h.Persister != nil {
		q.Register(JobTypePersistImage, func(ctx context.Context, job *Job) error {
			var p PersistImage
			if err := job.Decode(&p); err != nil {
				return err
			}
			if p.ImageID == 0 {
				return errors.New("persist job without image_id")
			}
			return h.Persister.Persist(ctx, p.ImageID)
		})
	}

	if h.Leaderboard != nil {
		q.Register(JobTypeLeaderboardSnapshot, func(ctx context.Context, _ *Job) error {
			_, err := h.Leaderboard.Snapshot(ctx)
			return err
		})
	}

	if h.Pipeline != nil && h.Source != nil {
		q.Register(JobTypeMentionPoll, func(ctx context.Context, job *Job) error {
			var p MentionPoll
			if err := job.Decode(&p); err != nil {
				return err
			}
			opts := h.Pull
			if p.Handle != "" {
				opts.Handle = p.Handle
			}
			summary, err := h.Pipeline.RunPull(ctx, h.Source, opts)
			if err != nil {
				return fmt.Errorf("mention poll: %w", err)
			}
			log.Infof("[JobQueue] Mention poll: fetched=%d processed=%d skipped=%d errors=%d retried=%d",
				summary.Fetched, summary.Processed, summary.Skipped, summary.Errors, summary.Retried)
			return nil
		})
	}
}
