package analytics

import (
	"folio/internal/tracking"
)

// PageTiming joins visits and page sessions for one pathname.
type PageTiming struct {
	Pathname           string `json:"pathname"`
	Visits             int    `json:"visits"`
	Sessions           int    `json:"sessions"`
	AvgVisibleTimeMs   int64  `json:"avgVisibleTimeMs"`
	TotalVisibleTimeMs int64  `json:"totalVisibleTimeMs"`
	AvgScrollDepth     int    `json:"avgScrollDepth"`
}

// ScrollMilestones counts page sessions that reached each scroll depth.
type ScrollMilestones struct {
	TotalSessions int `json:"totalSessions"`
	Reached25     int `json:"reached25"`
	Reached50     int `json:"reached50"`
	Reached75     int `json:"reached75"`
	Reached100    int `json:"reached100"`
}

type pageSessionStats struct {
	sessions     int
	totalVisible int64
	totalScroll  int64
}

func (s pageSessionStats) avgVisible() int64 {
	if s.sessions == 0 {
		return 0
	}
	return int64(roundHalfUp(float64(s.totalVisible) / float64(s.sessions)))
}

func (s pageSessionStats) avgScroll() int {
	if s.sessions == 0 {
		return 0
	}
	return roundHalfUp(float64(s.totalScroll) / float64(s.sessions))
}

type pageSessionSummary struct {
	avgVisibleTimeMs int64
	avgScrollDepth   int
}

func summarizePageSessions(sessions []tracking.PageSession) pageSessionSummary {
	var stats pageSessionStats
	for _, s := range sessions {
		stats.sessions++
		stats.totalVisible += s.VisibleTimeMs
		stats.totalScroll += int64(s.ScrollDepth)
	}
	return pageSessionSummary{avgVisibleTimeMs: stats.avgVisible(), avgScrollDepth: stats.avgScroll()}
}

// pageTiming ranks pathnames by visit count and attaches the timing of the
// page sessions recorded for the same pathname. Visits without a pathname
// are not ranked.
func pageTiming(visits []tracking.Visit, sessions []tracking.PageSession, limit int) []PageTiming {
	c := newCounter()
	for _, v := range visits {
		if v.Pathname == nil || *v.Pathname == "" {
			continue
		}
		c.add(*v.Pathname)
	}

	byPath := make(map[string]*pageSessionStats)
	for _, s := range sessions {
		stats := byPath[s.Pathname]
		if stats == nil {
			stats = &pageSessionStats{}
			byPath[s.Pathname] = stats
		}
		stats.sessions++
		stats.totalVisible += s.VisibleTimeMs
		stats.totalScroll += int64(s.ScrollDepth)
	}

	ranked := c.sorted(limit)
	out := make([]PageTiming, 0, len(ranked))
	for _, page := range ranked {
		var stats pageSessionStats
		if s := byPath[page.Name]; s != nil {
			stats = *s
		}
		out = append(out, PageTiming{
			Pathname:           page.Name,
			Visits:             page.Count,
			Sessions:           stats.sessions,
			AvgVisibleTimeMs:   stats.avgVisible(),
			TotalVisibleTimeMs: stats.totalVisible,
			AvgScrollDepth:     stats.avgScroll(),
		})
	}
	return out
}

func scrollMilestones(sessions []tracking.PageSession) ScrollMilestones {
	m := ScrollMilestones{TotalSessions: len(sessions)}
	for _, s := range sessions {
		if s.ScrollDepth >= 25 {
			m.Reached25++
		}
		if s.ScrollDepth >= 50 {
			m.Reached50++
		}
		if s.ScrollDepth >= 75 {
			m.Reached75++
		}
		if s.ScrollDepth >= 100 {
			m.Reached100++
		}
	}
	return m
}
