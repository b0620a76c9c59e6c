package controllers

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/app/repository"
	"github.com/trogdorcult/burninator/internal/pkg/leaderboard"
	"github.com/trogdorcult/burninator/internal/pkg/mentions"
	"github.com/trogdorcult/burninator/internal/pkg/scoring"
	"github.com/trogdorcult/burninator/internal/pkg/usercontext"
)

const recentMentions = 5

var handlePattern = regexp.MustCompile(`^@?[A-Za-z0-9_]{1,15}$`)

type usernameRequest struct {
	Username string `json:"username" validate:"required"`
}

type twitterLinkRequest struct {
	Handle string `json:"handle" validate:"required"`
}

type mentionView struct {
	models.Mention
	Tier string `json:"tier"`
}

// HandleProfile returns the signed-in account with its aggregates.
func (a *API) HandleProfile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	id := usercontext.GetAccountID(c)

	account, err := a.Accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
		}
		log.Errorf("[User] Load account %d: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
	}

	accountStats, err := a.Accounts.Stats(ctx, id)
	if err != nil {
		log.Errorf("[User] Stats for %d: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load statistics")
	}

	recent, err := a.Mentions.RecentByAccount(ctx, id, recentMentions)
	if err != nil {
		log.Errorf("[User] Recent mentions for %d: %v", id, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load mentions")
	}
	views := make([]mentionView, 0, len(recent))
	for _, m := range recent {
		views = append(views, mentionView{Mention: m, Tier: scoring.RewardTier(m.QualityScore)})
	}

	var rank any
	if a.Leaderboard != nil {
		if r, _, err := a.Leaderboard.AccountRank(ctx, id); err == nil {
			rank = r
		} else if !errors.Is(err, leaderboard.ErrAccountNotFound) {
			log.Warnf("[User] Rank for %d: %v", id, err)
		}
	}

	return c.JSON(fiber.Map{
		"account":        account,
		"displayName":    account.DisplayName(),
		"stats":          accountStats,
		"rank":           rank,
		"recentMentions": views,
	})
}

// HandleUpdateUsername sets the display name (2..50 characters).
func (a *API) HandleUpdateUsername(c *fiber.Ctx) error {
	var req usernameRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	name := strings.TrimSpace(req.Username)
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "Username must be 2 to 50 characters")
	}

	account, err := a.Accounts.UpdateUsername(c.UserContext(), usercontext.GetAccountID(c), name)
	if err != nil {
		return a.accountError(c, err, "Failed to update username")
	}
	return c.JSON(fiber.Map{"account": account})
}

// HandleLinkTwitter links a handle after resolving it with the mention source.
func (a *API) HandleLinkTwitter(c *fiber.Ctx) error {
	var req twitterLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	handle := strings.TrimSpace(req.Handle)
	if !handlePattern.MatchString(handle) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "Invalid Twitter handle")
	}
	handle = strings.TrimPrefix(handle, "@")

	if a.Twitter == nil {
		return unavailable(c, "Twitter lookup")
	}
	user, err := a.Twitter.UserByUsername(c.UserContext(), handle)
	if err != nil {
		switch {
		case errors.Is(err, mentions.ErrUserNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Twitter user not found")
		case errors.Is(err, mentions.ErrNotConfigured):
			return unavailable(c, "Twitter lookup")
		}
		log.Errorf("[User] Resolve @%s: %v", handle, err)
		return jsonError(c, fiber.StatusBadGateway, "upstream_error", "Could not reach Twitter")
	}

	linked := user.Handle()
	if linked == "" {
		linked = handle
	}
	account, err := a.Accounts.LinkTwitter(c.UserContext(), usercontext.GetAccountID(c), repository.TwitterLink{
		Handle:       linked,
		TwitterID:    user.ID,
		ProfileImage: user.Picture(),
	})
	if err != nil {
		return a.accountError(c, err, "Failed to link Twitter account")
	}
	log.Infof("[User] Account %d linked @%s", account.ID, linked)
	return c.JSON(fiber.Map{"account": account})
}

func (a *API) HandleUnlinkTwitter(c *fiber.Ctx) error {
	account, err := a.Accounts.UnlinkTwitter(c.UserContext(), usercontext.GetAccountID(c))
	if err != nil {
		return a.accountError(c, err, "Failed to unlink Twitter account")
	}
	return c.JSON(fiber.Map{"account": account})
}

// accountError maps repository errors to the not found / already linked /
// generic failure responses.
func (a *API) accountError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Account not found")
	case errors.Is(err, repository.ErrAlreadyLinked):
		return jsonError(c, fiber.StatusConflict, "already_linked", "This Twitter account is already linked to another wallet")
	}
	log.Errorf("[User] %s: %v", fallback, err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", fallback)
}
