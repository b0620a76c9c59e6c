package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	gothfiber "github.com/shareed2k/goth_fiber"
	"github.com/sujit-baniya/flash"

	"github.com/trogdorcult/burninator/app/repository"
	"github.com/trogdorcult/burninator/internal/pkg/cache"
	"github.com/trogdorcult/burninator/internal/pkg/oauth"
	"github.com/trogdorcult/burninator/internal/pkg/session"
	"github.com/trogdorcult/burninator/internal/pkg/usercontext"
)

const (
	linkTicketPrefix = "oauth:link:"
	linkTicketTTL    = 10 * time.Minute
)

// HandleOAuthTicket hands the signed-in wallet a one-time ticket for the
// browser redirect into the Twitter OAuth flow, which cannot carry the
// bearer token.
func (a *API) HandleOAuthTicket(c *fiber.Ctx) error {
	if a.Cache == nil || !oauth.Enabled() {
		return unavailable(c, "Twitter OAuth")
	}
	ticket := uuid.NewString()
	id := strconv.FormatUint(uint64(usercontext.GetAccountID(c)), 10)
	if err := a.Cache.Set(c.UserContext(), linkTicketPrefix+ticket, id, linkTicketTTL); err != nil {
		log.Errorf("[OAuth] Store link ticket: %v", err)
		return unavailable(c, "Twitter OAuth")
	}
	return c.JSON(fiber.Map{
		"ticket": ticket,
		"url":    oauth.PublicBase() + "/auth/" + oauth.ProviderTwitter + "?ticket=" + ticket,
	})
}

// HandleOAuthBegin redeems the ticket into the cookie session and starts
// the provider flow.
func (a *API) HandleOAuthBegin(c *fiber.Ctx) error {
	if c.Params("provider") != oauth.ProviderTwitter {
		return fiber.ErrNotFound
	}
	ticket := c.Query("ticket")
	if ticket == "" || a.Cache == nil {
		return linkRedirect(c, errors.New("missing link ticket"))
	}
	id, err := a.Cache.GetDel(c.UserContext(), linkTicketPrefix+ticket)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Errorf("[OAuth] Redeem link ticket: %v", err)
		}
		return linkRedirect(c, errors.New("link ticket expired, please try again"))
	}
	if err := session.SetLinkAccount(c, id); err != nil {
		log.Errorf("[OAuth] Session: %v", err)
		return linkRedirect(c, errors.New("could not start linking"))
	}
	return gothfiber.BeginAuthHandler(c)
}

// HandleOAuthCallback completes the provider flow and links the handle to
// the account that started it.
func (a *API) HandleOAuthCallback(c *fiber.Ctx) error {
	accountID, ok := session.PopLinkAccount(c)
	if !ok {
		return linkRedirect(c, errors.New("link session expired, please try again"))
	}

	u, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		log.Warnf("[OAuth] Provider flow failed for account %d: %v", accountID, err)
		return linkRedirect(c, errors.New("twitter authorization failed"))
	}

	_, err = a.Accounts.LinkTwitter(c.UserContext(), accountID, repository.TwitterLink{
		Handle:       u.NickName,
		TwitterID:    u.UserID,
		ProfileImage: u.AvatarURL,
	})
	switch {
	case errors.Is(err, repository.ErrAlreadyLinked):
		return linkRedirect(c, errors.New("this Twitter account is already linked to another wallet"))
	case err != nil:
		log.Errorf("[OAuth] Link account %d: %v", accountID, err)
		return linkRedirect(c, errors.New("failed to link Twitter account"))
	}

	log.Infof("[OAuth] Account %d linked @%s", accountID, u.NickName)
	_ = gothfiber.Logout(c)
	return flash.WithSuccess(c, fiber.Map{
		"type":    "success",
		"message": "Twitter account @" + u.NickName + " linked. Your offerings now count!",
	}).Redirect(oauth.PublicBase()+"/profile", fiber.StatusSeeOther)
}

// HandleFlash exposes the pending flash message to the frontend.
func (a *API) HandleFlash(c *fiber.Ctx) error {
	msg := flash.Get(c)
	if msg == nil {
		msg = fiber.Map{}
	}
	return c.JSON(msg)
}

func linkRedirect(c *fiber.Ctx, err error) error {
	return flash.WithError(c, fiber.Map{
		"type":    "error",
		"message": err.Error(),
	}).Redirect(oauth.PublicBase()+"/profile", fiber.StatusSeeOther)
}
