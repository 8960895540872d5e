package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/yvza/sudo.party-sub000/internal/pkg/reason"
	"github.com/yvza/sudo.party-sub000/internal/pkg/walletcontext"
)

// RequireWallet ensures a live wallet session and returns JSON 401 otherwise.
func RequireWallet(c *fiber.Ctx) error {
	if !walletcontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   reason.AuthenticationRequired,
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireFresh gates especially sensitive actions on a recent signature,
// independent of general session validity.
func RequireFresh(c *fiber.Ctx) error {
	wc := walletcontext.Get(c)
	if !wc.LoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   reason.AuthenticationRequired,
			"message": "login required",
		})
	}
	if !wc.Fresh {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   reason.AuthenticationRequired,
			"message": "recent signature required",
		})
	}
	return c.Next()
}
