package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "folio/api/v1"
	"folio/internal/config"
	"folio/internal/http"
	"folio/internal/http/middleware"
)

// publicCORSConfig is shared by every tracking endpoint; the portfolio is
// served from a different origin than the API.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// adminCORSConfig lets a dashboard on another origin send the bearer token.
var adminCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "GET,POST,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization",
}

// TrackingSecFetchSiteValues are the Sec-Fetch-Site values a tracking POST
// may carry.
var TrackingSecFetchSiteValues = []string{"cross-site", "same-site", "same-origin"}

func noContent(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()
	logger := srv.GetLogger()

	// Rate limiting would interfere with development and tests
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70/min per IP covers a visitor's pings and section flushes
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Login is the only brute-forceable endpoint
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	browserOnly := cartridgemiddleware.SecFetchSiteMiddleware(cartridgemiddleware.SecFetchSiteConfig{
		AllowedValues: TrackingSecFetchSiteValues,
		Methods:       []string{fiber.MethodPost},
	})

	// Tracking config: rate limiting + CORS + browser-only POSTs. The
	// portfolio page is cross-site to the API, so every browser value but
	// "none" is accepted and a missing header is rejected.
	trackConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter, browserOnly},
		CORSConfig:       publicCORSConfig,
	}

	// Admin clients authenticate with a bearer token, not a browser session
	loginConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CORSConfig:       adminCORSConfig,
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}

	adminAPIConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: adminCORSConfig,
		CustomMiddleware: []fiber.Handler{
			middleware.AdminBearerAuth(cfg.PrivateKey, logger),
		},
	}

	systemConfig := &cartridge.RouteConfig{}

	// === SYSTEM ROUTES ===
	srv.Get("/_health", http.HealthIndexAction, systemConfig)
	srv.Head("/_health", http.HealthIndexAction, systemConfig)
	srv.Get("/metrics", http.MetricsAction, systemConfig)

	// === TRACKING ROUTES ===
	track := []struct {
		path    string
		handler func(*cartridge.Context) error
	}{
		{"/api/track/visit", v1.TrackVisitHandler},
		{"/api/track/location", v1.TrackLocationHandler},
		{"/api/track/session", v1.TrackSessionHandler},
		{"/api/track/sections", v1.TrackSectionsHandler},
		{"/api/track/events", v1.TrackEventHandler},
	}
	for _, route := range track {
		srv.Post(route.path, route.handler, trackConfig)
		srv.Options(route.path, noContent, trackConfig)
	}

	// === ADMIN ROUTES ===
	adminPreflightConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CORSConfig: adminCORSConfig,
	}

	srv.Post("/api/admin/login", http.AdminLoginAction, loginConfig)
	srv.Options("/api/admin/login", noContent, adminPreflightConfig)
	srv.Get("/api/admin/analytics", http.AnalyticsReportAction, adminAPIConfig)
	srv.Options("/api/admin/analytics", noContent, adminPreflightConfig)
}
