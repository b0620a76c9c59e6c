package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/trogdorcult/burninator/internal/pkg/imagegen"
	"github.com/trogdorcult/burninator/internal/pkg/usercontext"
)

type generateRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// HandleGenerate proxies one prompt to the image model.
func (a *API) HandleGenerate(c *fiber.Ctx) error {
	if a.Generator == nil {
		return unavailable(c, "Image generation")
	}
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	img, err := a.Generator.Generate(c.UserContext(), usercontext.GetAccountID(c), req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, imagegen.ErrInvalidPrompt):
			return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		case errors.Is(err, imagegen.ErrRateLimited):
			return jsonError(c, fiber.StatusTooManyRequests, "rate_limited", "You can only generate 10 images per hour. Slow down there, burninator!")
		case errors.Is(err, imagegen.ErrNotConfigured):
			return unavailable(c, "Image generation")
		}
		log.Errorf("[Generator] %v", err)
		return jsonError(c, fiber.StatusBadGateway, "generation_failed", "Failed to generate image. Please try again.")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":       img.ID,
		"imageUrl": img.ImageURL,
		"prompt":   img.Prompt,
		"image":    img,
	})
}

// HandleHistory lists the caller's generated images: ?limit=&offset=
func (a *API) HandleHistory(c *fiber.Ctx) error {
	if a.Generator == nil {
		return unavailable(c, "Image generation")
	}
	limit, okLimit := queryInt(c, "limit", 20)
	offset, okOffset := queryInt(c, "offset", 0)
	if !okLimit || !okOffset || offset < 0 {
		return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_page", "limit and offset must be non-negative numbers")
	}

	images, hasMore, err := a.Generator.History(c.UserContext(), usercontext.GetAccountID(c), limit, offset)
	if err != nil {
		log.Errorf("[Generator] History: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load history")
	}
	return c.JSON(fiber.Map{"images": images, "hasMore": hasMore})
}
