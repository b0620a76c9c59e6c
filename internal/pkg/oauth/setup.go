package oauth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/twitterv2"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/env"
)

const ProviderTwitter = "twitterv2"

// CallbackURL is where the provider sends the user back to.
func CallbackURL() string {
	return PublicBase() + "/auth/" + ProviderTwitter + "/callback"
}

// PublicBase is the externally reachable origin of the app.
func PublicBase() string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	return base
}

// Enabled reports whether Twitter OAuth credentials are configured.
func Enabled() bool {
	return env.GetEnv("TWITTER_CLIENT_KEY", "") != "" && env.GetEnv("TWITTER_CLIENT_SECRET", "") != ""
}

// Setup registers the Twitter provider and the OAuth state store.
// It is safe to call multiple times; providers will just be re-registered.
func Setup() {
	goth.UseProviders(
		twitterv2.New(
			env.GetEnv("TWITTER_CLIENT_KEY", ""),
			env.GetEnv("TWITTER_CLIENT_SECRET", ""),
			CallbackURL(),
		),
	)

	cfg := session.Config{
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     15 * time.Minute,
	}
	if storage := cache.FiberStorage(cache.DBOAuthState); storage != nil {
		cfg.Storage = storage
	}
	gothfiber.SessionStore = session.New(cfg)
}
