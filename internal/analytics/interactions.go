package analytics

import (
	"strings"
	"time"

	"folio/internal/tracking"
)

// Conversion funnel stage names.
const (
	StageAllVisitors         = "All Visitors"
	StageSectionViews        = "Section Views"
	StageProjectInteractions = "Project Interactions"
	StageContactClicks       = "Contact/Social Clicks"
)

// FunnelStage is the number of distinct visitors that reached a stage.
type FunnelStage struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// RecentEvent is the projection of an interaction event in the recent list.
type RecentEvent struct {
	EventType   string    `json:"eventType"`
	EventTarget string    `json:"eventTarget"`
	Pathname    string    `json:"pathname"`
	Timestamp   time.Time `json:"timestamp"`
}

// conversionFunnel reports the raw size of each stage's visitor set. Stages
// are not nested: a visitor can reach a later stage without an earlier one.
func conversionFunnel(visits []tracking.Visit, durations []tracking.SectionDuration, events []tracking.InteractionEvent) []FunnelStage {
	all := make([]string, 0, len(visits))
	for _, v := range visits {
		all = append(all, v.VisitorID)
	}

	sectionViewers := make([]string, 0, len(durations))
	for _, d := range durations {
		sectionViewers = append(sectionViewers, d.VisitorID)
	}

	var projectVisitors, contactVisitors []string
	for _, e := range events {
		if strings.HasPrefix(string(e.EventType), "project_") {
			projectVisitors = append(projectVisitors, e.VisitorID)
		}
		if e.EventType.IsContactEvent() {
			contactVisitors = append(contactVisitors, e.VisitorID)
		}
	}

	return []FunnelStage{
		{Stage: StageAllVisitors, Count: distinct(all)},
		{Stage: StageSectionViews, Count: distinct(sectionViewers)},
		{Stage: StageProjectInteractions, Count: distinct(projectVisitors)},
		{Stage: StageContactClicks, Count: distinct(contactVisitors)},
	}
}

func topEvents(events []tracking.InteractionEvent) []NamedCount {
	c := newCounter()
	for _, e := range events {
		c.add(string(e.EventType))
	}
	return c.sorted(0)
}

func recentEvents(events []tracking.InteractionEvent, limit int) []RecentEvent {
	n := min(limit, len(events))
	out := make([]RecentEvent, 0, n)
	for _, e := range events[:n] {
		out = append(out, RecentEvent{
			EventType:   string(e.EventType),
			EventTarget: e.EventTarget,
			Pathname:    e.Pathname,
			Timestamp:   e.Timestamp.UTC(),
		})
	}
	return out
}
