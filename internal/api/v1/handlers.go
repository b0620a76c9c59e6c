package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/trogdorcult/burninator/app/controllers"
	"github.com/trogdorcult/burninator/internal/pkg/middleware"
)

// Pong is the health response
type Pong struct {
	Ping string `json:"ping"`
}

// GetPing handles the ping endpoint
func GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// RegisterHandlers mounts the v1 API as documented in public/docs/v1/openapi.yml.
// cron guards the scheduler endpoints.
func RegisterHandlers(v1 fiber.Router, api *controllers.API, cron fiber.Handler) {
	v1.Get("/ping", GetPing)

	// wallet sign-in
	v1.Get("/auth/nonce", api.HandleNonce)
	v1.Post("/auth/signin", api.HandleSignIn)

	// mention ingestion
	v1.Get("/webhooks/twitter", api.HandleWebhookChallenge)
	v1.Post("/webhooks/twitter", api.HandleWebhook)
	v1.Get("/cron/fetch-mentions", cron, api.HandleFetchMentions)
	v1.Post("/cron/fetch-mentions", cron, api.HandleFetchMentions)

	v1.Get("/leaderboard", api.HandleLeaderboard)
	v1.Get("/leaderboard/top", api.HandleTop)
	v1.Get("/stats", api.HandleStats)
	v1.Get("/flash", api.HandleFlash)

	me := v1.Group("/me", middleware.RequireAuth)
	me.Get("/", api.HandleProfile)
	me.Get("/rank", api.HandleMyRank)
	me.Put("/username", api.HandleUpdateUsername)
	me.Post("/twitter", api.HandleLinkTwitter)
	me.Delete("/twitter", api.HandleUnlinkTwitter)
	me.Post("/twitter/oauth", api.HandleOAuthTicket)

	gen := v1.Group("/generator", middleware.RequireAuth)
	gen.Post("/", api.HandleGenerate)
	gen.Get("/history", api.HandleHistory)
}
