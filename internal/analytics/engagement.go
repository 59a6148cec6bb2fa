package analytics

import (
	"math"
	"sort"
)

// Engagement score weights: four components of 25 points each.
const (
	componentWeight       = 25.0
	fullVisibleTimeMs     = 120000.0
	fullSectionBreadth    = 6
	fullInteractionCount  = 3
	maxEngagementScrollPc = 100
)

// SessionSignals are the per-session inputs to the engagement score. Each is
// accumulated from its own collection; a missing source contributes zero.
type SessionSignals struct {
	MaxScrollDepth   int
	VisibleTimeMs    int64
	SectionsViewed   int
	InteractionCount int
}

// EngagementScore blends scroll depth, visible time, section breadth and
// interactions into a 0-100 score.
func EngagementScore(s SessionSignals) float64 {
	scroll := float64(min(max(s.MaxScrollDepth, 0), maxEngagementScrollPc)) / 100 * componentWeight
	visible := math.Min(float64(max(s.VisibleTimeMs, 0))/fullVisibleTimeMs, 1) * componentWeight
	breadth := float64(min(s.SectionsViewed, fullSectionBreadth)) / fullSectionBreadth * componentWeight
	clicks := float64(min(s.InteractionCount, fullInteractionCount)) / fullInteractionCount * componentWeight
	return scroll + visible + breadth + clicks
}

// EngagementSummary reports the mean score and how scores are spread.
type EngagementSummary struct {
	AvgScore       int          `json:"avgScore"`
	ScoredSessions int          `json:"scoredSessions"`
	Distribution   []NamedCount `json:"distribution"`
}

var engagementBands = []struct {
	name  string
	upper float64
}{
	{"0-25", 25},
	{"25-50", 50},
	{"50-75", 75},
	{"75-100", math.Inf(1)},
}

type sessionAccumulator struct {
	signals  SessionSignals
	sections map[string]struct{}
}

// collectSessionSignals gathers signals for every session id that appears in
// any of the three collections.
func collectSessionSignals(ds *Dataset) map[string]SessionSignals {
	acc := make(map[string]*sessionAccumulator)
	get := func(id string) *sessionAccumulator {
		a := acc[id]
		if a == nil {
			a = &sessionAccumulator{sections: make(map[string]struct{})}
			acc[id] = a
		}
		return a
	}

	for _, s := range ds.PageSessions {
		if s.SessionID == "" {
			continue
		}
		a := get(s.SessionID)
		a.signals.MaxScrollDepth = max(a.signals.MaxScrollDepth, s.ScrollDepth)
		a.signals.VisibleTimeMs += s.VisibleTimeMs
	}
	for _, d := range ds.SectionDurations {
		if d.SessionID == "" {
			continue
		}
		get(d.SessionID).sections[d.SectionID] = struct{}{}
	}
	for _, e := range ds.Events {
		if e.SessionID == "" {
			continue
		}
		get(e.SessionID).signals.InteractionCount++
	}

	out := make(map[string]SessionSignals, len(acc))
	for id, a := range acc {
		a.signals.SectionsViewed = len(a.sections)
		out[id] = a.signals
	}
	return out
}

func computeEngagement(ds *Dataset) EngagementSummary {
	signals := collectSessionSignals(ds)

	// Sum in a fixed order so the mean is identical across runs.
	ids := make([]string, 0, len(signals))
	for id := range signals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	bands := make([]int, len(engagementBands))
	total := 0.0
	for _, id := range ids {
		score := EngagementScore(signals[id])
		total += score
		for i, band := range engagementBands {
			if score < band.upper {
				bands[i]++
				break
			}
		}
	}

	summary := EngagementSummary{ScoredSessions: len(ids)}
	if len(ids) > 0 {
		summary.AvgScore = roundHalfUp(total / float64(len(ids)))
	}
	for i, band := range engagementBands {
		summary.Distribution = append(summary.Distribution, NamedCount{Name: band.name, Count: bands[i]})
	}
	return summary
}
