package tracker_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/tracker"
	"folio/internal/tracking"
	"folio/internal/visitors"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type delivery struct {
	route   string
	payload any
	beacon  bool
}

type recordingTransport struct {
	mu        sync.Mutex
	delivered []delivery
	sendErr   error
}

func (r *recordingTransport) Send(_ context.Context, route string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, delivery{route: route, payload: payload})
	return r.sendErr
}

func (r *recordingTransport) Beacon(route string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, delivery{route: route, payload: payload, beacon: true})
}

func (r *recordingTransport) to(route string) []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []delivery
	for _, d := range r.delivered {
		if d.route == route {
			out = append(out, d)
		}
	}
	return out
}

var identity = visitors.Identity{VisitorID: "visitor-1", SessionID: "session-1"}

func TestVisibilityTimer(t *testing.T) {
	clock := newFakeClock()
	timer := tracker.NewVisibilityTimer(clock, true)

	clock.Advance(2 * time.Second)
	timer.SetVisible(false)
	timer.SetVisible(false)
	clock.Advance(10 * time.Second)
	assert.Equal(t, 2*time.Second, timer.Elapsed(), "hidden time does not accrue")

	timer.SetVisible(true)
	timer.SetVisible(true)
	clock.Advance(time.Second)
	assert.Equal(t, 3*time.Second, timer.Elapsed(), "repeated toggles do not double count")

	hidden := tracker.NewVisibilityTimer(clock, false)
	clock.Advance(time.Minute)
	assert.Zero(t, hidden.Elapsed())
}

func TestScrollTracker(t *testing.T) {
	var s tracker.ScrollTracker
	for _, depth := range []float64{10, 55.4, 30, -5} {
		s.Observe(depth)
	}
	assert.Equal(t, 55, s.Max(), "never decreases")

	s.Observe(180)
	assert.Equal(t, 100, s.Max(), "clamped")

	assert.Equal(t, 100.0, tracker.ScrollPercent(0, 600, 800), "short pages count as fully read")
	assert.Equal(t, 50.0, tracker.ScrollPercent(500, 1800, 800))
}

func TestSectionObserver(t *testing.T) {
	base := tracking.SectionDurationsPayload{VisitorID: "v", SessionID: "s", Pathname: "/"}

	t.Run("opens at the threshold and closes below it", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{}
		obs := tracker.NewSectionObserver(clock, transport, base, 0)
		ctx := context.Background()

		require.NoError(t, obs.Intersect(ctx, "about", 0.39))
		clock.Advance(time.Second)
		require.NoError(t, obs.Intersect(ctx, "about", 0.4))
		clock.Advance(1500 * time.Millisecond)
		require.NoError(t, obs.Intersect(ctx, "about", 0.9))
		clock.Advance(500 * time.Millisecond)
		require.NoError(t, obs.Intersect(ctx, "about", 0.1))

		assert.Equal(t, 1, obs.Pending())
		assert.Empty(t, transport.to(tracker.RouteSections))

		obs.Unload()
		sent := transport.to(tracker.RouteSections)
		require.Len(t, sent, 1)
		assert.True(t, sent[0].beacon)
		batch := sent[0].payload.(*tracking.SectionDurationsPayload)
		assert.Equal(t, "v", batch.VisitorID)
		assert.Equal(t, []tracking.SectionDurationEntry{{SectionID: "about", DurationMs: 2000}}, batch.Durations)
	})

	t.Run("sends once the buffer is full", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{}
		obs := tracker.NewSectionObserver(clock, transport, base, 0)
		ctx := context.Background()

		for i := 0; i < tracker.DefaultSectionBuffer; i++ {
			require.NoError(t, obs.Intersect(ctx, "projects", 1))
			clock.Advance(100 * time.Millisecond)
			require.NoError(t, obs.Intersect(ctx, "projects", 0))
		}

		sent := transport.to(tracker.RouteSections)
		require.Len(t, sent, 1)
		assert.False(t, sent[0].beacon)
		assert.Len(t, sent[0].payload.(*tracking.SectionDurationsPayload).Durations, tracker.DefaultSectionBuffer)
		assert.Zero(t, obs.Pending())
	})

	t.Run("returns the send error", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{sendErr: errors.New("offline")}
		obs := tracker.NewSectionObserver(clock, transport, base, 1)

		require.NoError(t, obs.Intersect(context.Background(), "contact", 1))
		clock.Advance(time.Second)
		assert.Error(t, obs.Intersect(context.Background(), "contact", 0))
	})

	t.Run("pausing closes intervals and resuming reopens visible ones", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{}
		obs := tracker.NewSectionObserver(clock, transport, base, 0)
		ctx := context.Background()

		require.NoError(t, obs.Intersect(ctx, "resume", 0.8))
		clock.Advance(time.Second)
		obs.Pause()
		clock.Advance(time.Minute)
		obs.Resume()
		clock.Advance(time.Second)
		obs.Unload()

		var total float64
		for _, d := range transport.to(tracker.RouteSections) {
			assert.True(t, d.beacon)
			for _, entry := range d.payload.(*tracking.SectionDurationsPayload).Durations {
				total += entry.DurationMs
			}
		}
		assert.Equal(t, 2000.0, total, "hidden time is not attributed to the section")
	})
}

func TestPageView(t *testing.T) {
	newPageView := func(clock tracker.Clock, transport tracker.Transport) *tracker.PageView {
		return tracker.NewPageView(tracker.PageViewOptions{
			Transport: transport,
			Identity:  identity,
			Mode:      tracking.ModeXR,
			Pathname:  "/",
			Clock:     clock,
		})
	}

	t.Run("records exactly one page session", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{}
		pv := newPageView(clock, transport)

		pv.Scroll(40)
		pv.Scroll(85)
		pv.Scroll(20)
		clock.Advance(3 * time.Second)
		pv.SetVisible(false)
		clock.Advance(time.Minute)
		pv.SetVisible(true)
		clock.Advance(time.Second)

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pv.Close()
			}()
		}
		wg.Wait()
		pv.Close()

		sessions := transport.to(tracker.RouteSession)
		require.Len(t, sessions, 1)
		assert.True(t, sessions[0].beacon)

		payload := sessions[0].payload.(*tracking.PageSessionPayload)
		assert.Equal(t, identity.VisitorID, payload.VisitorID)
		assert.Equal(t, 4000.0, *payload.VisibleTimeMs)
		assert.Equal(t, 64000.0, *payload.TotalTimeMs)
		assert.Equal(t, 85.0, *payload.ScrollDepth)
	})

	t.Run("skips sessions shorter than the minimum", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{}
		pv := newPageView(clock, transport)

		clock.Advance(499 * time.Millisecond)
		pv.Close()
		assert.Empty(t, transport.to(tracker.RouteSession))
	})

	t.Run("hiding flushes sections over the beacon path", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{}
		pv := newPageView(clock, transport)

		require.NoError(t, pv.Intersect(context.Background(), "about", 1))
		clock.Advance(time.Second)
		pv.SetVisible(false)

		sent := transport.to(tracker.RouteSections)
		require.Len(t, sent, 1)
		assert.True(t, sent[0].beacon)
	})

	t.Run("posts visits and events with the identity", func(t *testing.T) {
		clock := newFakeClock()
		transport := &recordingTransport{}
		pv := newPageView(clock, transport)
		ctx := context.Background()

		require.NoError(t, pv.TrackVisit(ctx))
		require.NoError(t, pv.TrackPreciseLocation(ctx, 40.4, -3.7))
		require.NoError(t, pv.TrackEvent(ctx, tracking.EventResumeDownload, "cv.pdf", map[string]any{"format": "pdf"}))

		visit := transport.to(tracker.RouteVisit)[0].payload.(*tracking.VisitPayload)
		assert.Equal(t, identity.SessionID, visit.SessionID)
		assert.Equal(t, tracking.ModeXR, visit.Mode)

		location := transport.to(tracker.RouteLocation)[0].payload.(*tracking.PreciseLocationPayload)
		assert.Equal(t, 40.4, *location.Latitude)

		event := transport.to(tracker.RouteEvents)[0].payload.(*tracking.InteractionEventPayload)
		assert.Equal(t, "resume_download", event.EventType)
		assert.Equal(t, clock.Now().Format(time.RFC3339Nano), event.Timestamp)
	})
}

func TestHTTPTransport(t *testing.T) {
	type received struct {
		path        string
		contentType string
		marker      string
		body        map[string]any
	}
	var (
		mu   sync.Mutex
		seen []received
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		mu.Lock()
		seen = append(seen, received{r.URL.Path, r.Header.Get("Content-Type"), r.Header.Get("Sec-Fetch-Site"), body})
		mu.Unlock()

		if r.URL.Path == "/api/track/events" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid eventType"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	transport := tracker.NewHTTPTransport(server.URL+"/", tracker.WithHeader("Sec-Fetch-Site", "cross-site"))

	require.NoError(t, transport.Send(context.Background(), tracker.RouteVisit, map[string]string{"visitorId": "v"}))

	err := transport.Send(context.Background(), tracker.RouteEvents, map[string]string{"eventType": "nope"})
	var statusErr *tracker.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "Invalid eventType")

	transport.Beacon(tracker.RouteSession, map[string]any{"visibleTimeMs": 1200})
	transport.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, "/api/track/visit", seen[0].path)
	assert.Equal(t, "application/json", seen[0].contentType)
	assert.Equal(t, "cross-site", seen[0].marker)
	assert.Equal(t, "/api/track/session", seen[2].path)
	assert.Equal(t, "text/plain;charset=UTF-8", seen[2].contentType)
	assert.Equal(t, 1200.0, seen[2].body["visibleTimeMs"])
}

func TestHTTPTransportSendHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.NewHTTPTransport(server.URL).Send(ctx, tracker.RouteVisit, map[string]string{})
	assert.ErrorIs(t, err, context.Canceled)
}
