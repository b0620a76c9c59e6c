package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	redisstorage "github.com/gofiber/storage/redis"
)

// Redis databases used next to the cache (DB 0).
const (
	DBSessions   = 1
	DBOAuthState = 2
	DBRateLimit  = 3
)

// FiberStorage opens fiber middleware storage on the cache server in a
// separate database. It returns nil on the memory cache so that fiber
// middlewares fall back to their in-memory storage.
func FiberStorage(db int) fiber.Storage {
	c := GetClient()
	if c == nil {
		return nil
	}
	opts := c.Options()
	host, port := "127.0.0.1", 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if parsed, e := strconv.Atoi(p); e == nil {
			port = parsed
		}
	} else if opts.Addr != "" {
		host = opts.Addr
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Username: opts.Username,
		Password: opts.Password,
		Database: db,
		Reset:    false,
	})
}
