package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"folio/internal/auth"
)

// AdminBearerAuth rejects requests that lack a valid admin bearer token.
// Expects: Authorization: Bearer <token>
func AdminBearerAuth(secret string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return unauthorized(c)
		}

		if _, err := auth.ValidateToken(secret, token); err != nil {
			logger.Warn("Rejected admin token",
				slog.String("ip", c.IP()),
				slog.Any("error", err))
			return unauthorized(c)
		}

		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "Unauthorized",
	})
}
