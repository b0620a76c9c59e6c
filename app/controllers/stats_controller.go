package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/stats"
)

// HandleStats returns the global counters. A database failure yields zeros.
func (a *API) HandleStats(c *fiber.Ctx) error {
	global, err := a.Stats.Get(c.UserContext())
	if err != nil {
		log.Errorf("[Stats] %v", err)
		return c.JSON(stats.Global{})
	}
	return c.JSON(global)
}
