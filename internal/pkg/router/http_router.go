package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/trogdorcult/burninator/internal/pkg/metrics"
	"github.com/trogdorcult/burninator/internal/pkg/middleware"
	"github.com/trogdorcult/burninator/internal/pkg/oauth"
	"github.com/trogdorcult/burninator/internal/pkg/session"
)

type HttpRouter struct {
	cfg Config
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	app.Use(metrics.Middleware())

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware(h.cfg.Tokens))

	h.registerPublicRoutes(app)
	h.registerMonitoringRoutes(app)
}

func NewHttpRouter(cfg Config) *HttpRouter {
	return &HttpRouter{cfg: cfg}
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Twitter OAuth account linking
	app.Get("/auth/:provider", h.cfg.API.HandleOAuthBegin)
	app.Get("/auth/:provider/callback", h.cfg.API.HandleOAuthCallback)
}

// registerMonitoringRoutes exposes prometheus and the fiber monitor behind
// basic auth. Without a password hash both stay unmounted.
func (h HttpRouter) registerMonitoringRoutes(app *fiber.App) {
	if h.cfg.MetricsPasswordHash == "" {
		log.Warn("[Router] METRICS_PASSWORD_HASH not set, /metrics and /monitor are disabled")
		return
	}
	auth := basicauth.New(basicauth.Config{
		Authorizer: bcryptAuthorizer(h.cfg.MetricsUser, h.cfg.MetricsPasswordHash),
	})
	app.Get("/metrics", auth, adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/monitor", auth, monitor.New(monitor.Config{Title: "Cult of Trogdor"}))
}

func bcryptAuthorizer(user, hash string) func(string, string) bool {
	return func(u, p string) bool {
		if u != user {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
	}
}
