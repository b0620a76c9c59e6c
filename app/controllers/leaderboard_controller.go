package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
	"github.com/trogdorcult/burninator/internal/pkg/usercontext"
)

const topSize = 10

// HandleLeaderboard serves one ranked page: ?period=&page=&limit=
func (a *API) HandleLeaderboard(c *fiber.Ctx) error {
	period, err := leaderboard.ParsePeriod(c.Query("period"))
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_period", "period must be alltime, monthly, weekly or daily")
	}
	page, okPage := queryInt(c, "page", 1)
	limit, okLimit := queryInt(c, "limit", leaderboard.DefaultPageSize)
	if !okPage || !okLimit {
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_page", "page and limit must be numbers")
	}

	result, err := a.Leaderboard.GetRanked(c.UserContext(), period, page, limit)
	if err != nil {
		if errors.Is(err, leaderboard.ErrInvalidPage) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_page", "page must be >= 1 and limit between 1 and 100")
		}
		log.Errorf("[Leaderboard] %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load leaderboard")
	}
	return c.JSON(result)
}

func (a *API) HandleTop(c *fiber.Ctx) error {
	entries, err := a.Leaderboard.Top(c.UserContext(), topSize)
	if err != nil {
		log.Errorf("[Leaderboard] Top: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load leaderboard")
	}
	return c.JSON(fiber.Map{"entries": entries})
}

// HandleMyRank returns the signed-in account's all-time position.
func (a *API) HandleMyRank(c *fiber.Ctx) error {
	rank, score, err := a.Leaderboard.AccountRank(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		if errors.Is(err, leaderboard.ErrAccountNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
		}
		log.Errorf("[Leaderboard] Rank: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load rank")
	}
	return c.JSON(fiber.Map{"rank": rank, "score": score})
}
