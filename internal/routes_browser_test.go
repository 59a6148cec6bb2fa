package internal_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal"
	"folio/internal/config"
	"folio/internal/testsupport"
)

func setupRoutesApp(t *testing.T) *fiber.App {
	t.Helper()
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	return testsupport.CreateMinimalTestApp(t, db)
}

func TestServerConfigChecksSecFetchSitePerRoute(t *testing.T) {
	serverCfg := internal.NewServerConfig(config.GetConfig())
	assert.False(t, serverCfg.EnableSecFetchSite, "the global guard would block cross-site tracking and non-browser admin calls")
	assert.False(t, serverCfg.EnableTemplates)
	assert.False(t, serverCfg.EnableStaticAssets)
}

func TestTrackingBeaconSecFetchSite(t *testing.T) {
	app := setupRoutesApp(t)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"cross-site browser", "cross-site", http.StatusOK},
		{"same-site browser", "same-site", http.StatusOK},
		{"same-origin browser", "same-origin", http.StatusOK},
		{"direct navigation", "none", http.StatusForbidden},
		{"server to server", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"visitorId":"v","sessionId":"s","eventType":"resume_download","eventTarget":"cv.pdf"}`
			req := httptest.NewRequest(http.MethodPost, "/api/track/events", strings.NewReader(body))
			req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
			if tt.header != "" {
				req.Header.Set("Sec-Fetch-Site", tt.header)
			}

			resp, err := app.Test(req, 30000)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdminRoutesAcceptNonBrowserClients(t *testing.T) {
	app := setupRoutesApp(t)

	cfg := config.GetConfig()
	previous := cfg.AdminPassword
	cfg.AdminPassword = "correct horse"
	t.Cleanup(func() { cfg.AdminPassword = previous })

	login := func(password string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login",
			bytes.NewReader([]byte(`{"password":"`+password+`"}`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, login("wrong"))
	assert.Equal(t, http.StatusOK, login("correct horse"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/admin/analytics", nil), 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/_health", nil), 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
