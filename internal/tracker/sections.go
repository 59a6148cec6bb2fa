package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"folio/internal/tracking"
)

const (
	// DefaultSectionThreshold is the intersection ratio at which a section counts as viewed.
	DefaultSectionThreshold = 0.4
	// DefaultSectionBuffer is how many closed intervals are batched per flush.
	DefaultSectionBuffer = 5
)

// SectionObserver turns intersection samples into dwell intervals and ships
// them in batches.
type SectionObserver struct {
	mu        sync.Mutex
	clock     Clock
	transport Transport
	base      tracking.SectionDurationsPayload
	threshold float64
	limit     int

	ratios map[string]float64
	open   map[string]time.Time
	buffer []tracking.SectionDurationEntry
	paused bool
}

// NewSectionObserver creates an observer whose batches carry base's identity,
// mode and pathname. A non-positive limit uses DefaultSectionBuffer.
func NewSectionObserver(clock Clock, transport Transport, base tracking.SectionDurationsPayload, limit int) *SectionObserver {
	if limit <= 0 {
		limit = DefaultSectionBuffer
	}
	base.Durations = nil
	return &SectionObserver{
		clock:     clock,
		transport: transport,
		base:      base,
		threshold: DefaultSectionThreshold,
		limit:     limit,
		ratios:    make(map[string]float64),
		open:      make(map[string]time.Time),
	}
}

// Intersect records the current intersection ratio of a section. Crossing
// the threshold upwards opens an interval; dropping below closes it. When
// the buffer fills, the batch is sent and its error returned.
func (o *SectionObserver) Intersect(ctx context.Context, sectionID string, ratio float64) error {
	if sectionID == "" {
		return nil
	}

	o.mu.Lock()
	o.ratios[sectionID] = ratio
	now := o.clock.Now()
	if ratio >= o.threshold {
		if _, isOpen := o.open[sectionID]; !isOpen && !o.paused {
			o.open[sectionID] = now
		}
	} else {
		o.closeLocked(sectionID, now)
	}
	batch := o.takeIfFullLocked()
	o.mu.Unlock()

	if batch == nil {
		return nil
	}
	return o.transport.Send(ctx, RouteSections, batch)
}

// Pause closes every open interval, as when the page is hidden, and beacons
// whatever is buffered.
func (o *SectionObserver) Pause() {
	o.mu.Lock()
	o.paused = true
	o.closeAllLocked(o.clock.Now())
	batch := o.takeLocked()
	o.mu.Unlock()

	if batch != nil {
		o.transport.Beacon(RouteSections, batch)
	}
}

// Resume reopens intervals for sections still above the threshold.
func (o *SectionObserver) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused = false
	now := o.clock.Now()
	for id, ratio := range o.ratios {
		if ratio >= o.threshold {
			o.open[id] = now
		}
	}
}

// Unload closes open intervals and beacons the remainder. The observer
// stays paused afterwards.
func (o *SectionObserver) Unload() {
	o.Pause()
}

// Pending returns the number of buffered closed intervals.
func (o *SectionObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buffer)
}

func (o *SectionObserver) closeLocked(sectionID string, now time.Time) {
	start, isOpen := o.open[sectionID]
	if !isOpen {
		return
	}
	delete(o.open, sectionID)

	ms := float64(now.Sub(start)) / float64(time.Millisecond)
	if ms <= 0 {
		return
	}
	o.buffer = append(o.buffer, tracking.SectionDurationEntry{SectionID: sectionID, DurationMs: ms})
}

func (o *SectionObserver) closeAllLocked(now time.Time) {
	ids := make([]string, 0, len(o.open))
	for id := range o.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		o.closeLocked(id, now)
	}
}

func (o *SectionObserver) takeIfFullLocked() *tracking.SectionDurationsPayload {
	if len(o.buffer) < o.limit {
		return nil
	}
	return o.takeLocked()
}

func (o *SectionObserver) takeLocked() *tracking.SectionDurationsPayload {
	if len(o.buffer) == 0 {
		return nil
	}
	batch := o.base
	batch.Durations = o.buffer
	o.buffer = nil
	return &batch
}
