package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/security"
	"github.com/trogdorcult/burninator/internal/pkg/usercontext"
)

// UserContextMiddleware resolves an optional bearer session token into the
// request's user context. Invalid tokens leave the request anonymous;
// RequireAuth decides whether that is acceptable.
func UserContextMiddleware(tokens *security.SessionTokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c)
		if raw == "" || tokens == nil {
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			log.Debugf("[Auth] Rejected session token: %v", err)
			usercontext.Set(c, usercontext.UserContext{})
			return c.Next()
		}

		usercontext.Set(c, usercontext.UserContext{
			AccountID:     claims.AccountID,
			WalletAddress: claims.WalletAddress,
			IsLoggedIn:    true,
		})
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
