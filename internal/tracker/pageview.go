package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"folio/internal/tracking"
	"folio/internal/visitors"
)

// MinSessionVisible is the visible time below which no page session is recorded.
const MinSessionVisible = 500 * time.Millisecond

// PageViewOptions describe one page view.
type PageViewOptions struct {
	Transport        Transport
	Identity         visitors.Identity
	Mode             string
	Pathname         string
	Referrer         string
	UserAgent        string
	ScreenResolution string

	// Optional
	Clock         Clock
	Logger        *slog.Logger
	SectionBuffer int
	Hidden        bool
}

// PageView composes the visibility, scroll and section measurements of a
// single page view and emits exactly one page-session record.
type PageView struct {
	opts     PageViewOptions
	clock    Clock
	logger   *slog.Logger
	started  time.Time
	timer    *VisibilityTimer
	scroll   *ScrollTracker
	sections *SectionObserver

	closeOnce sync.Once
}

// NewPageView starts measuring a page view.
func NewPageView(opts PageViewOptions) *PageView {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pv := &PageView{
		opts:    opts,
		clock:   clock,
		logger:  logger,
		started: clock.Now(),
		timer:   NewVisibilityTimer(clock, !opts.Hidden),
		scroll:  &ScrollTracker{},
	}
	pv.sections = NewSectionObserver(clock, opts.Transport, tracking.SectionDurationsPayload{
		VisitorID: opts.Identity.VisitorID,
		SessionID: opts.Identity.SessionID,
		Mode:      opts.Mode,
		Pathname:  opts.Pathname,
	}, opts.SectionBuffer)
	if opts.Hidden {
		pv.sections.Pause()
	}
	return pv
}

// TrackVisit posts the visit record for this page view.
func (pv *PageView) TrackVisit(ctx context.Context) error {
	return pv.opts.Transport.Send(ctx, RouteVisit, &tracking.VisitPayload{
		VisitorID:        pv.opts.Identity.VisitorID,
		SessionID:        pv.opts.Identity.SessionID,
		Mode:             pv.opts.Mode,
		Pathname:         pv.opts.Pathname,
		UserAgent:        pv.opts.UserAgent,
		Referrer:         pv.opts.Referrer,
		ScreenResolution: pv.opts.ScreenResolution,
	})
}

// TrackPreciseLocation attaches browser coordinates to the visit.
func (pv *PageView) TrackPreciseLocation(ctx context.Context, latitude, longitude float64) error {
	return pv.opts.Transport.Send(ctx, RouteLocation, &tracking.PreciseLocationPayload{
		VisitorID: pv.opts.Identity.VisitorID,
		SessionID: pv.opts.Identity.SessionID,
		Latitude:  &latitude,
		Longitude: &longitude,
	})
}

// TrackEvent posts one interaction event stamped with the client clock.
func (pv *PageView) TrackEvent(ctx context.Context, eventType tracking.EventType, target string, metadata map[string]any) error {
	return pv.opts.Transport.Send(ctx, RouteEvents, &tracking.InteractionEventPayload{
		VisitorID:   pv.opts.Identity.VisitorID,
		SessionID:   pv.opts.Identity.SessionID,
		EventType:   string(eventType),
		EventTarget: target,
		Metadata:    metadata,
		Pathname:    pv.opts.Pathname,
		Mode:        pv.opts.Mode,
		Timestamp:   pv.clock.Now().UTC().Format(time.RFC3339Nano),
	})
}

// SetVisible follows the page's visibility. Hiding pauses time accounting
// and flushes buffered section intervals over the beacon path.
func (pv *PageView) SetVisible(visible bool) {
	if visible == pv.timer.IsVisible() {
		return
	}
	pv.timer.SetVisible(visible)
	if visible {
		pv.sections.Resume()
	} else {
		pv.sections.Pause()
	}
}

// Scroll records a sampled scroll depth in percent.
func (pv *PageView) Scroll(depth float64) {
	pv.scroll.Observe(depth)
}

// Intersect records a section's intersection ratio.
func (pv *PageView) Intersect(ctx context.Context, sectionID string, ratio float64) error {
	return pv.sections.Intersect(ctx, sectionID, ratio)
}

// VisibleTime returns the visible time accrued so far.
func (pv *PageView) VisibleTime() time.Duration {
	return pv.timer.Elapsed()
}

// MaxScrollDepth returns the deepest scroll depth so far.
func (pv *PageView) MaxScrollDepth() int {
	return pv.scroll.Max()
}

// Close ends the page view. Teardown and unload may both call it; only the
// first call flushes sections and beacons the page session, which is skipped
// when the page was visible for less than MinSessionVisible.
func (pv *PageView) Close() {
	pv.closeOnce.Do(func() {
		pv.sections.Unload()

		visible := pv.timer.Elapsed()
		pv.timer.SetVisible(false)
		if visible < MinSessionVisible {
			pv.logger.Debug("Skipped short page session",
				slog.String("pathname", pv.opts.Pathname),
				slog.Duration("visible", visible))
			return
		}

		visibleMs := float64(visible) / float64(time.Millisecond)
		totalMs := float64(pv.clock.Now().Sub(pv.started)) / float64(time.Millisecond)
		scrollDepth := float64(pv.scroll.Max())
		pv.opts.Transport.Beacon(RouteSession, &tracking.PageSessionPayload{
			VisitorID:     pv.opts.Identity.VisitorID,
			SessionID:     pv.opts.Identity.SessionID,
			Pathname:      pv.opts.Pathname,
			VisibleTimeMs: &visibleMs,
			TotalTimeMs:   &totalMs,
			ScrollDepth:   &scrollDepth,
			Mode:          pv.opts.Mode,
		})
	})
}
