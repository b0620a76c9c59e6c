package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleFetchMentions runs one pull-mode ingestion pass for the scheduler.
func (a *API) HandleFetchMentions(c *fiber.Ctx) error {
	if a.Pipeline == nil || a.Source == nil {
		return unavailable(c, "Mention source")
	}
	log.Info("[Cron] Fetching mentions")

	summary, err := a.Pipeline.RunPull(c.UserContext(), a.Source, a.Pull)
	if err != nil {
		log.Errorf("[Cron] Pull run failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "pull_failed",
			"message": err.Error(),
			"summary": summary,
		})
	}
	return c.JSON(fiber.Map{"success": true, "summary": summary})
}
