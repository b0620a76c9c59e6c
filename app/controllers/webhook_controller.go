package controllers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/ingestion"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
)

// HandleWebhookChallenge answers the CRC check with the signed token.
func (a *API) HandleWebhookChallenge(c *fiber.Ctx) error {
	token := c.Query("crc_token")
	if token == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing crc_token")
	}
	if a.WebhookSecret == "" {
		return jsonError(c, fiber.StatusInternalServerError, "not_configured", "Webhook secret not configured")
	}
	return c.JSON(fiber.Map{"response_token": mentions.CRCResponseToken(token, a.WebhookSecret)})
}

// HandleWebhook ingests one pushed mention after verifying its signature.
// Nothing is read from or written to the store before the signature matches.
func (a *API) HandleWebhook(c *fiber.Ctx) error {
	signature := c.Get(mentions.SignatureHeader)
	timestamp := c.Get(mentions.TimestampHeader)
	if signature == "" || timestamp == "" {
		log.Warn("[Webhook] Missing signature or timestamp")
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing signature")
	}

	body := c.Body()
	if a.WebhookSecret == "" || !mentions.VerifyWebhookSignature(body, signature, timestamp, a.WebhookSecret) {
		log.Warn("[Webhook] Invalid signature")
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid signature")
	}

	if a.Pipeline == nil {
		return unavailable(c, "Ingestion")
	}

	var tweet mentions.Tweet
	if err := json.Unmarshal(body, &tweet); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid payload")
	}

	res, err := a.Pipeline.ProcessTweet(c.UserContext(), ingestion.SourceWebhook, tweet)
	if err != nil {
		if res.Outcome == ingestion.OutcomeInvalid {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
		}
		log.Errorf("[Webhook] Event %s failed: %v", tweet.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Processing failed")
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"cached":       res.Outcome == ingestion.OutcomeAlreadyProcessed,
		"userNotFound": res.Outcome == ingestion.OutcomeOwnerNotFound,
		"outcome":      res.Outcome,
		"mentionId":    res.MentionID,
		"score":        res.Score,
	})
}
