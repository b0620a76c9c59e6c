package controllers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/app/repository"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/ingestion"
	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
	"github.com/trogdorcult/burninator/internal/pkg/security"
	"github.com/trogdorcult/burninator/internal/pkg/stats"
	"github.com/trogdorcult/burninator/internal/pkg/walletauth"
)

// UserLookup resolves a Twitter handle to the platform account.
type UserLookup interface {
	UserByUsername(ctx context.Context, handle string) (*mentions.User, error)
}

// ImageGenerator is the generation proxy behind /generator.
type ImageGenerator interface {
	Generate(ctx context.Context, accountID uint, prompt string) (*models.GeneratedImage, error)
	History(ctx context.Context, accountID uint, limit, offset int) ([]models.GeneratedImage, bool, error)
}

type StatsReader interface {
	Get(ctx context.Context) (stats.Global, error)
}

// API bundles the services the HTTP handlers depend on. Optional services
// may be nil; their routes answer 503.
type API struct {
	Accounts repository.AccountRepository
	Mentions repository.MentionRepository

	Nonces *walletauth.NonceStore
	Auth   *walletauth.Authenticator
	Tokens *security.SessionTokens

	Pipeline      *ingestion.Pipeline
	Source        ingestion.Source
	Pull          ingestion.PullOptions
	WebhookSecret string

	Leaderboard *leaderboard.Service
	Twitter     UserLookup
	Generator   ImageGenerator
	Stats       StatsReader

	// Cache holds one-time OAuth link tickets.
	Cache cache.Cache
}

// validate is shared by all handlers; it caches struct metadata and is safe
// for concurrent use.
var validate = validator.New()

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func unavailable(c *fiber.Ctx, what string) error {
	return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", what+" is not configured")
}
