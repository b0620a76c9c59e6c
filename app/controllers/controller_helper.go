package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP determines the client address considering Cloudflare and
// standard proxy headers. Used as the rate limiter key.
func ClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		// X-Forwarded-For can contain a list of IPs - the first one is the original client IP
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	ip := c.IP()
	// ::ffff:192.168.1.1 is an IPv4 address in IPv6 format
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}

// queryInt reads a bounded integer query parameter.
func queryInt(c *fiber.Ctx, key string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
