// Package session keeps the short-lived cookie session that carries the
// signed-in account across the Twitter OAuth redirect.
package session

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/env"
)

const keyLinkAccount = "link_account_id"

var (
	store *session.Store

	ErrNoStore = errors.New("session store not initialized")
)

// NewSessionStore installs the cookie session. Sessions live in cache DB 1,
// or in memory without a cache.
func NewSessionStore() *session.Store {
	cfg := session.Config{
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     15 * time.Minute,
		KeyLookup:      "cookie:trogdor_link",
	}
	if storage := cache.FiberStorage(cache.DBSessions); storage != nil {
		cfg.Storage = storage
	}
	store = session.New(cfg)
	return store
}

// SetLinkAccount remembers which account started the link flow.
func SetLinkAccount(c *fiber.Ctx, accountID string) error {
	if store == nil {
		return ErrNoStore
	}
	sess, err := store.Get(c)
	if err != nil {
		return err
	}
	sess.Set(keyLinkAccount, accountID)
	return sess.Save()
}

// PopLinkAccount returns and clears the pending link account id.
func PopLinkAccount(c *fiber.Ctx) (uint, bool) {
	if store == nil {
		return 0, false
	}
	sess, err := store.Get(c)
	if err != nil {
		return 0, false
	}
	raw, _ := sess.Get(keyLinkAccount).(string)
	sess.Delete(keyLinkAccount)
	_ = sess.Save()

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
