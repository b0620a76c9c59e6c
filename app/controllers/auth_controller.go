package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/app/models"
	"github.com/trogdorcult/burninator/internal/pkg/walletauth"
)

// HandleNonce issues a single-use sign-in challenge.
func (a *API) HandleNonce(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"nonce": a.Nonces.Issue(c.UserContext())})
}

// HandleSignIn verifies a signed challenge and returns a session token.
func (a *API) HandleSignIn(c *fiber.Ctx) error {
	var cred walletauth.Credentials
	if err := c.BodyParser(&cred); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(cred); err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "missing_credentials", "Missing credentials")
	}

	if err := a.Auth.Authenticate(c.UserContext(), cred); err != nil {
		switch {
		case errors.Is(err, walletauth.ErrInvalidNonce):
			return jsonError(c, fiber.StatusUnauthorized, "invalid_nonce", "Invalid or expired nonce")
		case errors.Is(err, walletauth.ErrInvalidSignature):
			return jsonError(c, fiber.StatusUnauthorized, "invalid_signature", "Invalid signature")
		default:
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication failed")
		}
	}

	account, created, err := a.Accounts.SignIn(c.UserContext(), models.NormalizeWallet(cred.PublicKey))
	if err != nil {
		log.Errorf("[Auth] Sign-in for %s failed: %v", cred.PublicKey, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not sign in")
	}
	if created {
		log.Infof("[Auth] New cultist joined: %s", account.WalletAddress)
	}

	token, expires, err := a.Tokens.Issue(account.ID, account.WalletAddress)
	if err != nil {
		log.Errorf("[Auth] Token issue failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Could not sign in")
	}

	return c.JSON(fiber.Map{
		"token":     token,
		"expiresAt": expires,
		"created":   created,
		"account":   account,
	})
}
