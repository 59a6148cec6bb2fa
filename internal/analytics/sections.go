package analytics

import (
	"sort"

	"folio/internal/tracking"
)

// SectionEngagement aggregates the dwell intervals of one section.
type SectionEngagement struct {
	SectionID       string `json:"sectionId"`
	Views           int    `json:"views"`
	TotalDurationMs int64  `json:"totalDurationMs"`
	AvgDurationMs   int64  `json:"avgDurationMs"`
}

// SectionFunnelStep is the share of sessions that ever viewed a section.
type SectionFunnelStep struct {
	SectionID  string `json:"sectionId"`
	Sessions   int    `json:"sessions"`
	Percentage int    `json:"percentage"`
}

func sectionEngagement(durations []tracking.SectionDuration) []SectionEngagement {
	var order []string
	bySection := make(map[string]*SectionEngagement)
	for _, d := range durations {
		se := bySection[d.SectionID]
		if se == nil {
			se = &SectionEngagement{SectionID: d.SectionID}
			bySection[d.SectionID] = se
			order = append(order, d.SectionID)
		}
		se.Views++
		se.TotalDurationMs += d.DurationMs
	}

	out := make([]SectionEngagement, 0, len(order))
	for _, id := range order {
		se := *bySection[id]
		se.AvgDurationMs = int64(roundHalfUp(float64(se.TotalDurationMs) / float64(se.Views)))
		out = append(out, se)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalDurationMs > out[j].TotalDurationMs
	})
	return out
}

// sectionFunnel divides, for each section in page order, the sessions that
// viewed it by the sessions with any page-session record. Arrival order is
// ignored, so a later section can exceed an earlier one.
func sectionFunnel(sessions []tracking.PageSession, durations []tracking.SectionDuration) []SectionFunnelStep {
	active := make(map[string]struct{})
	for _, s := range sessions {
		if s.SessionID != "" {
			active[s.SessionID] = struct{}{}
		}
	}

	viewers := make(map[string]map[string]struct{})
	for _, d := range durations {
		if d.SessionID == "" {
			continue
		}
		if viewers[d.SectionID] == nil {
			viewers[d.SectionID] = make(map[string]struct{})
		}
		viewers[d.SectionID][d.SessionID] = struct{}{}
	}

	out := make([]SectionFunnelStep, 0, len(tracking.SectionOrder))
	for _, section := range tracking.SectionOrder {
		count := len(viewers[section])
		pct := 0
		if len(active) > 0 {
			pct = roundHalfUp(float64(count) / float64(len(active)) * 100)
		}
		out = append(out, SectionFunnelStep{SectionID: section, Sessions: count, Percentage: pct})
	}
	return out
}
