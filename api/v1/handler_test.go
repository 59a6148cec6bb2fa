// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"folio/internal/pkg/geoip"
	"folio/internal/testsupport"
	"folio/internal/tracking"
)

type apiResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Location string `json:"location"`
}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	return testsupport.CreateMinimalTestApp(t, db), db
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (*http.Response, apiResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	req.Header.Set("Sec-Fetch-Site", "cross-site") // Required for browser-only validation
	return do(t, app, req)
}

func do(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, apiResponse) {
	t.Helper()
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out apiResponse
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp, out
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestTrackVisitHandler(t *testing.T) {
	t.Run("stores a development visit from a loopback address", func(t *testing.T) {
		app, db := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/visit", map[string]any{
			"visitorId":        "visitor-1",
			"sessionId":        "session-1",
			"mode":             "xr",
			"pathname":         "/",
			"referrer":         "https://www.google.com/",
			"screenResolution": "1920x1080",
		})

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)
		assert.Equal(t, geoip.LocalCity, body.Location)

		var visit tracking.Visit
		require.NoError(t, db.First(&visit).Error)
		assert.Equal(t, "visitor-1", visit.VisitorID)
		assert.Equal(t, geoip.LocalCountry, visit.Country)
		require.NotNil(t, visit.UserAgent)
		assert.Equal(t, "Mozilla/5.0 (Test Agent)", *visit.UserAgent, "falls back to the request header")
		assert.Nil(t, visit.Latitude)
	})

	t.Run("accepts an empty visit", func(t *testing.T) {
		app, db := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/visit", map[string]any{})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)
		assert.Equal(t, int64(1), count(t, db, &tracking.Visit{}))
	})

	t.Run("decodes beacon bodies sent as plain text", func(t *testing.T) {
		app, db := setupApp(t)

		req := httptest.NewRequest(http.MethodPost, "/api/track/visit",
			strings.NewReader(`{"visitorId":"beacon-visitor","sessionId":"beacon-session"}`))
		req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		req.Header.Set("Sec-Fetch-Site", "cross-site")

		resp, body := do(t, app, req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)

		var visit tracking.Visit
		require.NoError(t, db.First(&visit).Error)
		assert.Equal(t, "beacon-visitor", visit.VisitorID)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		app, db := setupApp(t)

		req := httptest.NewRequest(http.MethodPost, "/api/track/visit", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Sec-Fetch-Site", "cross-site")

		resp, body := do(t, app, req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, body.Success)
		assert.Equal(t, int64(0), count(t, db, &tracking.Visit{}))
	})

	t.Run("rejects server-to-server requests", func(t *testing.T) {
		app, db := setupApp(t)

		req := httptest.NewRequest(http.MethodPost, "/api/track/visit", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "curl/8.4.0")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, int64(0), count(t, db, &tracking.Visit{}))
	})
}

func TestTrackLocationHandler(t *testing.T) {
	t.Run("updates every visit of the pair", func(t *testing.T) {
		app, db := setupApp(t)
		testsupport.CreateVisit(t, db, testsupport.VisitFixture{VisitorID: "v", SessionID: "s"})
		testsupport.CreateVisit(t, db, testsupport.VisitFixture{VisitorID: "v", SessionID: "other"})

		resp, body := postJSON(t, app, "/api/track/location", map[string]any{
			"visitorId": "v",
			"sessionId": "s",
			"latitude":  52.52,
			"longitude": 13.405,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)

		var precise int64
		require.NoError(t, db.Model(&tracking.Visit{}).Where("precise_location = ?", true).Count(&precise).Error)
		assert.Equal(t, int64(1), precise)
	})

	t.Run("succeeds without a matching visit", func(t *testing.T) {
		app, db := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/location", map[string]any{
			"visitorId": "nobody",
			"sessionId": "nothing",
			"latitude":  1.0,
			"longitude": 2.0,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)
		assert.Equal(t, int64(0), count(t, db, &tracking.Visit{}))
	})

	t.Run("requires both ids", func(t *testing.T) {
		app, _ := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/location", map[string]any{"visitorId": "v"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, body.Success)
		assert.NotEmpty(t, body.Error)
	})
}

func TestTrackSessionHandler(t *testing.T) {
	tests := []struct {
		name       string
		payload    map[string]any
		wantStatus int
		wantRows   int64
	}{
		{
			name:       "valid session",
			payload:    map[string]any{"visitorId": "v", "sessionId": "s", "pathname": "/", "visibleTimeMs": 1500.6, "scrollDepth": 140},
			wantStatus: http.StatusOK,
			wantRows:   1,
		},
		{
			name:       "zero visible time is allowed",
			payload:    map[string]any{"visitorId": "v", "sessionId": "s", "visibleTimeMs": 0},
			wantStatus: http.StatusOK,
			wantRows:   1,
		},
		{
			name:       "missing visible time",
			payload:    map[string]any{"visitorId": "v", "sessionId": "s"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "negative visible time",
			payload:    map[string]any{"visitorId": "v", "sessionId": "s", "visibleTimeMs": -1},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "non-numeric visible time",
			payload:    map[string]any{"visitorId": "v", "sessionId": "s", "visibleTimeMs": "long"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing session id",
			payload:    map[string]any{"visitorId": "v", "visibleTimeMs": 10},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, db := setupApp(t)

			resp, body := postJSON(t, app, "/api/track/session", tt.payload)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantStatus == http.StatusOK, body.Success)
			assert.Equal(t, tt.wantRows, count(t, db, &tracking.PageSession{}))
		})
	}

	t.Run("stores rounded and clamped values", func(t *testing.T) {
		app, db := setupApp(t)

		_, body := postJSON(t, app, "/api/track/session", map[string]any{
			"visitorId": "v", "sessionId": "s", "visibleTimeMs": 1500.6, "totalTimeMs": 2000.4, "scrollDepth": 140,
		})
		require.True(t, body.Success)

		var session tracking.PageSession
		require.NoError(t, db.First(&session).Error)
		assert.Equal(t, int64(1501), session.VisibleTimeMs)
		assert.Equal(t, int64(2000), session.TotalTimeMs)
		assert.Equal(t, 100, session.ScrollDepth)
	})
}

func TestTrackSectionsHandler(t *testing.T) {
	t.Run("stores only the valid entries", func(t *testing.T) {
		app, db := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/sections", map[string]any{
			"visitorId": "v",
			"sessionId": "s",
			"durations": []map[string]any{
				{"sectionId": "about", "durationMs": 1200},
				{"sectionId": "", "durationMs": 800},
				{"sectionId": "contact", "durationMs": 0},
			},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)
		assert.Equal(t, int64(1), count(t, db, &tracking.SectionDuration{}))
	})

	t.Run("rejects a batch with nothing valid", func(t *testing.T) {
		app, db := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/sections", map[string]any{
			"visitorId": "v",
			"sessionId": "s",
			"durations": []map[string]any{{"sectionId": "about", "durationMs": -5}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, body.Success)
		assert.Equal(t, int64(0), count(t, db, &tracking.SectionDuration{}))
	})

	t.Run("a non-numeric duration drops only its entry", func(t *testing.T) {
		app, db := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/sections", map[string]any{
			"visitorId": "v",
			"sessionId": "s",
			"durations": []map[string]any{
				{"sectionId": "about", "durationMs": 500},
				{"sectionId": "projects", "durationMs": "1500"},
				{"sectionId": "resume", "durationMs": 1e30},
			},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)

		var stored []tracking.SectionDuration
		require.NoError(t, db.Find(&stored).Error)
		require.Len(t, stored, 1)
		assert.Equal(t, "about", stored[0].SectionID)
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		app, _ := setupApp(t)

		resp, _ := postJSON(t, app, "/api/track/sections", map[string]any{
			"visitorId": "v", "sessionId": "s", "durations": []any{},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTrackEventHandler(t *testing.T) {
	t.Run("stores an allow-listed event", func(t *testing.T) {
		app, db := setupApp(t)
		clientTime := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		resp, body := postJSON(t, app, "/api/track/events", map[string]any{
			"visitorId":   "v",
			"sessionId":   "s",
			"eventType":   "resume_download",
			"eventTarget": "cv.pdf",
			"metadata":    map[string]any{"format": "pdf", "pages": 2},
			"timestamp":   clientTime.Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, body.Success)

		var event tracking.InteractionEvent
		require.NoError(t, db.First(&event).Error)
		assert.Equal(t, tracking.EventResumeDownload, event.EventType)
		assert.True(t, clientTime.Equal(event.Timestamp))
		assert.Equal(t, map[string]string{"format": "pdf", "pages": "2"}, event.Metadata.Data())
	})

	t.Run("rejects an unknown event type", func(t *testing.T) {
		app, db := setupApp(t)

		resp, body := postJSON(t, app, "/api/track/events", map[string]any{
			"visitorId": "v", "sessionId": "s", "eventType": "page_scroll",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.False(t, body.Success)
		assert.Equal(t, int64(0), count(t, db, &tracking.InteractionEvent{}))
	})
}

func TestTrackPreflight(t *testing.T) {
	app, _ := setupApp(t)

	for _, path := range []string{
		"/api/track/visit",
		"/api/track/location",
		"/api/track/session",
		"/api/track/sections",
		"/api/track/events",
	} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://portfolio.example")
		req.Header.Set("Access-Control-Request-Method", "POST")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"), path)
	}
}
