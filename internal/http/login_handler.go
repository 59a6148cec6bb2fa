package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folio/internal/auth"
	"folio/internal/config"
)

// LoginRequest is the body of an admin login.
type LoginRequest struct {
	Password string `json:"password"`
}

// AdminLoginAction exchanges the admin password for a bearer token.
func AdminLoginAction(ctx *cartridge.Context) error {
	var req LoginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	cfg := config.GetConfig()
	if !auth.CheckPassword(cfg.AdminPassword, req.Password) {
		ctx.Logger.Warn("Failed admin login", slog.String("ip", ctx.IP()))
		return ctx.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid password",
		})
	}

	token, expiresAt, err := auth.IssueToken(cfg.PrivateKey, cfg.AdminTokenTTL(), time.Now())
	if err != nil {
		ctx.Logger.Error("Failed to issue admin token", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to issue token",
		})
	}

	ctx.Logger.Info("Admin logged in", slog.String("ip", ctx.IP()))
	return ctx.JSON(fiber.Map{
		"success":   true,
		"token":     token,
		"expiresAt": expiresAt,
	})
}
