package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trogdorcult/burninator/app/controllers"
	"github.com/trogdorcult/burninator/internal/pkg/security"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries what the routers need beyond the controllers.
type Config struct {
	API        *controllers.API
	Tokens     *security.SessionTokens
	CronSecret string

	MetricsUser         string
	MetricsPasswordHash string

	// RateLimit is the number of /api requests per minute per client.
	RateLimit int
}

func InstallRouter(app *fiber.App, cfg Config) {
	// Install HttpRouter first to initialize session store, oauth providers,
	// and the global UserContext middleware. Then register API routes which
	// depend on that middleware (e.g., RequireAuth).
	setup(app, NewHttpRouter(cfg), NewApiRouter(cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
