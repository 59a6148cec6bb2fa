package internal

import (
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findRoute(routes []fiber.Route, method, path string) *fiber.Route {
	for idx := range routes {
		if routes[idx].Method == method && routes[idx].Path == path {
			return &routes[idx]
		}
	}
	return nil
}

func handlerNames(route *fiber.Route) []string {
	names := make([]string, 0, len(route.Handlers))
	for _, handler := range route.Handlers {
		names = append(names, runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name())
	}
	return names
}

func TestTrackingRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	for _, path := range []string{
		"/api/track/visit",
		"/api/track/location",
		"/api/track/session",
		"/api/track/sections",
		"/api/track/events",
	} {
		post := findRoute(routes, fiber.MethodPost, path)
		require.NotNil(t, post, "expected POST %s", path)
		assert.NotNil(t, findRoute(routes, fiber.MethodOptions, path), "expected OPTIONS %s", path)

		// The rate limiter is wrapped in a conditional function that only
		// applies in production; the wrapper is still registered.
		hasRateLimiter := false
		for _, name := range handlerNames(post) {
			if strings.Contains(name, "middleware/limiter") || strings.Contains(name, "MountAppRoutes.func") {
				hasRateLimiter = true
				break
			}
		}
		assert.Truef(t, hasRateLimiter, "expected rate limiter middleware for %s, handlers: %v", path, handlerNames(post))
	}
}

func TestAdminRoutesRegistered(t *testing.T) {
	srv := testsupport.NewTestServer(t, testsupport.TestServerOptions{
		RouteMountFunc: MountAppRoutes,
	})
	routes := srv.App.GetRoutes(true)

	analytics := findRoute(routes, fiber.MethodGet, "/api/admin/analytics")
	require.NotNil(t, analytics)

	hasBearer := false
	for _, name := range handlerNames(analytics) {
		if strings.Contains(name, "AdminBearerAuth") {
			hasBearer = true
			break
		}
	}
	assert.Truef(t, hasBearer, "expected bearer auth on the report, handlers: %v", handlerNames(analytics))

	assert.NotNil(t, findRoute(routes, fiber.MethodPost, "/api/admin/login"))
	assert.NotNil(t, findRoute(routes, fiber.MethodGet, "/_health"))
	assert.NotNil(t, findRoute(routes, fiber.MethodGet, "/metrics"))
}
