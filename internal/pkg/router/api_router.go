package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/trogdorcult/burninator/app/controllers"
	apiv1 "github.com/trogdorcult/burninator/internal/api/v1"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/middleware"
)

const defaultRateLimit = 120

type ApiRouter struct {
	cfg Config
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	max := h.cfg.RateLimit
	if max <= 0 {
		max = defaultRateLimit
	}
	limiterCfg := limiter.Config{
		Max:          max,
		Expiration:   time.Minute,
		KeyGenerator: controllers.ClientIP,
		// Webhook deliveries arrive in bursts from a handful of IPs.
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/api/v1/webhooks/twitter"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, the peasants are restless",
			})
		},
	}
	if storage := cache.FiberStorage(cache.DBRateLimit); storage != nil {
		limiterCfg.Storage = storage
	}

	api := app.Group("/api", limiter.New(limiterCfg))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.cfg.API, middleware.CronSecret(h.cfg.CronSecret))
}

func NewApiRouter(cfg Config) *ApiRouter {
	return &ApiRouter{cfg: cfg}
}
