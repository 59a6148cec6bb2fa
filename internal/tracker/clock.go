package tracker

import (
	"math"
	"sync"
	"time"

	"folio/internal/tracking"
)

// Clock abstracts time so page views can be replayed deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// VisibilityTimer accrues time only while the page is visible.
type VisibilityTimer struct {
	mu      sync.Mutex
	clock   Clock
	visible bool
	since   time.Time
	accrued time.Duration
}

// NewVisibilityTimer starts a timer in the given visibility state.
func NewVisibilityTimer(clock Clock, visible bool) *VisibilityTimer {
	t := &VisibilityTimer{clock: clock, visible: visible}
	if visible {
		t.since = clock.Now()
	}
	return t
}

// SetVisible records a visibility change. Repeating the current state is a
// no-op, so duplicate events never count an interval twice.
func (t *VisibilityTimer) SetVisible(visible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if visible == t.visible {
		return
	}
	now := t.clock.Now()
	if t.visible {
		t.accrued += now.Sub(t.since)
	} else {
		t.since = now
	}
	t.visible = visible
}

// IsVisible reports the current state.
func (t *VisibilityTimer) IsVisible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Elapsed returns the visible time so far, including an open interval.
func (t *VisibilityTimer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.visible {
		return t.accrued + t.clock.Now().Sub(t.since)
	}
	return t.accrued
}

// ScrollTracker keeps the deepest scroll position of a page view.
type ScrollTracker struct {
	mu  sync.Mutex
	max float64
}

// ScrollPercent converts a scroll position into a 0-100 depth. A page that
// fits the viewport counts as fully scrolled.
func ScrollPercent(scrollTop, scrollHeight, viewportHeight float64) float64 {
	scrollable := scrollHeight - viewportHeight
	if scrollable <= 0 {
		return 100
	}
	return scrollTop / scrollable * 100
}

// Observe records a sampled depth. Values are clamped to [0, 100] and the
// maximum never decreases.
func (s *ScrollTracker) Observe(depth float64) {
	if math.IsNaN(depth) {
		return
	}
	depth = math.Min(math.Max(depth, 0), 100)

	s.mu.Lock()
	defer s.mu.Unlock()
	if depth > s.max {
		s.max = depth
	}
}

// Max returns the deepest observed depth, rounded to a whole percent.
func (s *ScrollTracker) Max() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(tracking.RoundHalfUp(s.max))
}
