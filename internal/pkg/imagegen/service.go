package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/trogdorcult/burninator/app/models"
)

var (
	ErrRateLimited   = errors.New("image generation rate limit exceeded")
	ErrInvalidPrompt = fmt.Errorf("prompt must be %d to %d characters", MinPromptLength, MaxPromptLength)
)

// Generator is the external image provider.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Prediction, error)
	ModelName() string
}

// Store persists generation records.
type Store interface {
	Create(ctx context.Context, img *models.GeneratedImage) error
	ListByAccount(ctx context.Context, accountID uint, limit, offset int) ([]models.GeneratedImage, error)
}

// PersistFunc hands a stored record to background persistence.
type PersistFunc func(ctx context.Context, imageID uint) error

type Service struct {
	gen     Generator
	store   Store
	limiter *RateLimiter
	persist PersistFunc
}

func NewService(gen Generator, store Store, limiter *RateLimiter, persist PersistFunc) *Service {
	return &Service{gen: gen, store: store, limiter: limiter, persist: persist}
}

// Generate runs one generation for the account and records it.
func (s *Service) Generate(ctx context.Context, accountID uint, prompt string) (*models.GeneratedImage, error) {
	prompt = strings.TrimSpace(prompt)
	if n := len([]rune(prompt)); n < MinPromptLength || n > MaxPromptLength {
		return nil, ErrInvalidPrompt
	}
	if !s.limiter.Allow(ctx, accountID) {
		return nil, ErrRateLimited
	}

	pred, err := s.gen.Generate(ctx, EnhancePrompt(prompt))
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	url, err := pred.ImageURL()
	if err != nil {
		return nil, err
	}

	providerID := pred.ID
	if providerID == "" {
		providerID = "flux-" + uuid.NewString()
	}

	img := &models.GeneratedImage{
		AccountID:  accountID,
		Prompt:     prompt,
		ImageURL:   url,
		ProviderID: providerID,
		Model:      s.gen.ModelName(),
		Status:     models.GENERATION_COMPLETED,
	}
	if err := s.store.Create(ctx, img); err != nil {
		return nil, fmt.Errorf("save generated image: %w", err)
	}

	if s.persist != nil {
		if err := s.persist(ctx, img.ID); err != nil {
			// Provider URLs stay valid for a while; the record is still usable.
			log.Warnf("[ImageGen] Could not schedule persistence for image %d: %v", img.ID, err)
		}
	}
	return img, nil
}

// History pages through the account's generations, newest first.
func (s *Service) History(ctx context.Context, accountID uint, limit, offset int) ([]models.GeneratedImage, bool, error) {
	if limit < 1 || limit > 50 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	images, err := s.store.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, false, err
	}
	return images, len(images) == limit, nil
}
