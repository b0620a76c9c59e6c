package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/usercontext"
)

// RequireAuth ensures a signed-in wallet and returns JSON 401 otherwise.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "sign in with your wallet first",
		})
	}
	return c.Next()
}

// CronSecret guards scheduler endpoints with a shared bearer secret. An
// empty secret leaves the endpoint open, which is only acceptable in
// development.
func CronSecret(secret string) fiber.Handler {
	if secret == "" {
		log.Warn("[Cron] CRON_SECRET is not set: scheduler endpoints are open (development only, not safe for production)")
	}
	return func(c *fiber.Ctx) error {
		if secret == "" {
			log.Warnf("[Cron] Unauthenticated call to %s accepted because CRON_SECRET is unset", c.Path())
			return c.Next()
		}
		got := bearerToken(c)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "invalid scheduler credential",
			})
		}
		return c.Next()
	}
}
