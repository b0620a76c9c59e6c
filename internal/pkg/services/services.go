// Package services builds the domain services shared by the HTTP server and
// the operations CLI from one database handle and one cache.
package services

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/app/repository"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/env"
	"github.com/trogdorcult/burninator/internal/pkg/idempotency"
	"github.com/trogdorcult/burninator/internal/pkg/imagegen"
	"github.com/trogdorcult/burninator/internal/pkg/ingestion"
	"github.com/trogdorcult/burninator/internal/pkg/jobqueue"
	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
	"github.com/trogdorcult/burninator/internal/pkg/objectstore"
	"github.com/trogdorcult/burninator/internal/pkg/security"
	"github.com/trogdorcult/burninator/internal/pkg/stats"
	"github.com/trogdorcult/burninator/internal/pkg/walletauth"
)

type Services struct {
	Repos *repository.Repositories
	Cache cache.Cache

	Tokens *security.SessionTokens
	Nonces *walletauth.NonceStore
	Auth   *walletauth.Authenticator

	Leaderboard *leaderboard.Service
	Ledger      *idempotency.Ledger
	Pipeline    *ingestion.Pipeline
	Twitter     *mentions.Client
	Pull        ingestion.PullOptions

	Images    *imagegen.Service
	Persister *imagegen.Persister
	Stats     *stats.Service

	Jobs *jobqueue.Manager
}

// New wires every service. rdb may be nil, in which case background jobs
// run in-process.
func New(ctx context.Context, db *gorm.DB, c cache.Cache, rdb *redis.Client) (*Services, error) {
	repository.InitializeFactory(db)
	s := &Services{
		Repos: repository.GetGlobalRepositories(),
		Cache: c,
	}

	tokens, err := security.NewSessionTokens(env.GetEnv("JWT_SECRET", ""), env.GetEnvDuration("JWT_TTL", 30*24*time.Hour))
	if err != nil {
		return nil, err
	}
	s.Tokens = tokens
	s.Nonces = walletauth.NewNonceStore(c)
	s.Auth = walletauth.NewAuthenticator(s.Nonces)

	s.Leaderboard = leaderboard.NewService(leaderboard.NewRepository(db), c,
		env.GetEnvDuration("LEADERBOARD_CACHE_TTL", leaderboard.DefaultCacheTTL))
	s.Ledger = idempotency.NewLedger(c, idempotency.NewRepository(db), models.IngestionSourceTwitter, models.EventTypeTwitterMention)
	s.Pipeline = ingestion.NewPipeline(ingestion.NewRepository(db), s.Ledger, s.Leaderboard)
	s.Pipeline.SetResumeStore(c)
	s.Twitter = mentions.NewClientFromEnv()
	s.Pull = ingestion.PullOptions{
		Handle:     s.Twitter.TrackedAccount,
		MaxPages:   env.GetEnvInt("MENTIONS_MAX_PAGES", ingestion.DefaultMaxPages),
		MaxRetries: env.GetEnvInt("MENTIONS_MAX_RETRIES", ingestion.DefaultMaxRetries),
	}
	s.Stats = stats.NewService(stats.NewCounter(db), c)

	if err := s.setupImageStorage(ctx); err != nil {
		return nil, err
	}

	queue := jobqueue.NewQueue(rdb, env.GetEnvInt("JOBQUEUE_WORKERS", 3))
	handlers := jobqueue.Handlers{
		Leaderboard: s.Leaderboard,
		Pipeline:    s.Pipeline,
		Source:      s.Twitter,
		Pull:        s.Pull,
	}
	if s.Persister != nil {
		handlers.Persister = s.Persister
	}
	jobqueue.RegisterHandlers(queue, handlers)
	s.Jobs = jobqueue.NewManager(queue, jobqueue.Schedule{
		MentionPoll:         env.GetEnvDuration("MENTIONS_POLL_INTERVAL", 0),
		LeaderboardSnapshot: env.GetEnvDuration("LEADERBOARD_SNAPSHOT_INTERVAL", time.Hour),
	})

	var persist imagegen.PersistFunc
	if s.Persister != nil {
		persist = func(ctx context.Context, imageID uint) error {
			_, err := s.Jobs.Enqueue(ctx, jobqueue.JobTypePersistImage, jobqueue.PersistImage{ImageID: imageID})
			return err
		}
	}
	s.Images = imagegen.NewService(
		imagegen.NewClientFromEnv(),
		s.Repos.GeneratedImage,
		imagegen.NewRateLimiter(c, env.GetEnvInt("GENERATOR_HOURLY_LIMIT", imagegen.DefaultHourlyLimit)),
		persist,
	)
	return s, nil
}

// setupImageStorage connects S3 when enabled. Without it generated images
// keep their provider URLs.
func (s *Services) setupImageStorage(ctx context.Context) error {
	cfg, err := objectstore.LoadConfig()
	if err != nil {
		return err
	}
	if !cfg.IsEnabled() {
		log.Info("[Services] Object storage disabled, generated images keep provider URLs")
		return nil
	}
	client, err := objectstore.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	s.Persister = imagegen.NewPersister(s.Repos.GeneratedImage, client, cfg)
	return nil
}
