// Package analytics computes the admin report from the raw tracking streams.
//
// A report is a batch recompute: the four collections are loaded for the
// requested window and every metric is derived from that in-memory Dataset.
// Records are joined only by visitor and session id; a record whose id is
// empty simply drops out of the metrics keyed on that id.
//
// The package is organized into focused files:
//   - report.go: Report shape and the BuildReport entry point
//   - dataset.go: concurrent loading of the window
//   - visitors.go: period counts, growth, modes, geography, screens
//   - referrers.go: referrer breakdown
//   - pages.go: per-page timing and scroll milestones
//   - sections.go: section engagement and view-through funnel
//   - engagement.go: per-session engagement score
//   - interactions.go: conversion funnel and event lists
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"folio/internal/tracking"
)

// Report list sizes.
const (
	TopLocationsLimit  = 10
	TopPagesLimit      = 10
	TopReferrersLimit  = 5
	RecentVisitsLimit  = 20
	RecentEventsLimit  = 30
	VisitsOverTimeDays = 7
)

var reportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "folio_report_build_duration_seconds",
	Help:    "Time spent loading and aggregating the analytics report",
	Buckets: prometheus.DefBuckets,
})

// Window is an inclusive [From, To] time range.
type Window struct {
	From time.Time
	To   time.Time
}

// Options fixes the clock and timezone used for calendar buckets.
type Options struct {
	Now      time.Time
	Location *time.Location
}

func (o Options) normalized() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	o.Now = o.Now.In(o.Location)
	return o
}

// NamedCount is a generic label and count pair.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary holds the headline numbers.
type Summary struct {
	TotalVisitors      int   `json:"totalVisitors"`
	TodayVisitors      int   `json:"todayVisitors"`
	YesterdayVisitors  int   `json:"yesterdayVisitors"`
	ThisWeekVisitors   int   `json:"thisWeekVisitors"`
	ThisMonthVisitors  int   `json:"thisMonthVisitors"`
	UniqueVisitors     int   `json:"uniqueVisitors"`
	UniqueSessions     int   `json:"uniqueSessions"`
	GrowthRate         int   `json:"growthRate"`
	TotalPageSessions  int   `json:"totalPageSessions"`
	AvgVisibleTimeMs   int64 `json:"avgVisibleTimeMs"`
	AvgScrollDepth     int   `json:"avgScrollDepth"`
	TotalSectionViews  int   `json:"totalSectionViews"`
	TotalInteractions  int   `json:"totalInteractions"`
	AvgEngagementScore int   `json:"avgEngagementScore"`
}

// Report is the full admin analytics payload.
type Report struct {
	From               time.Time           `json:"from"`
	To                 time.Time           `json:"to"`
	Summary            Summary             `json:"summary"`
	ModeBreakdown      ModeBreakdown       `json:"modeBreakdown"`
	TopCountries       []NamedCount        `json:"topCountries"`
	TopCities          []CityCount         `json:"topCities"`
	Geography          []CountryNode       `json:"geography"`
	VisitsOverTime     []DailyCount        `json:"visitsOverTime"`
	RecentVisits       []RecentVisit       `json:"recentVisits"`
	Locations          []MapLocation       `json:"locations"`
	HourlyDistribution []HourlyCount       `json:"hourlyDistribution"`
	ScreenSizes        []NamedCount        `json:"screenSizes"`
	Referrers          []ReferrerCount     `json:"referrers"`
	PageTiming         []PageTiming        `json:"pageTiming"`
	ScrollMilestones   ScrollMilestones    `json:"scrollMilestones"`
	SectionEngagement  []SectionEngagement `json:"sectionEngagement"`
	SectionFunnel      []SectionFunnelStep `json:"sectionFunnel"`
	Engagement         EngagementSummary   `json:"engagement"`
	ConversionFunnel   []FunnelStage       `json:"conversionFunnel"`
	TopEvents          []NamedCount        `json:"topEvents"`
	RecentEvents       []RecentEvent       `json:"recentEvents"`
}

// BuildReport loads the window and aggregates it. Any load failure fails the
// whole report; partial reports are never returned.
func BuildReport(ctx context.Context, db *gorm.DB, window Window, opts Options) (*Report, error) {
	timer := prometheus.NewTimer(reportDuration)
	defer timer.ObserveDuration()

	dataset, err := LoadDataset(ctx, db, window)
	if err != nil {
		return nil, err
	}

	report := Compute(dataset, opts)
	report.From = window.From.UTC()
	report.To = window.To.UTC()
	return report, nil
}

// Compute derives every metric from an already loaded dataset. It is a pure
// function of the dataset and opts.
func Compute(ds *Dataset, opts Options) *Report {
	opts = opts.normalized()

	engagement := computeEngagement(ds)
	pageSummary := summarizePageSessions(ds.PageSessions)

	summary := visitorSummary(ds.Visits, opts)
	summary.TotalPageSessions = len(ds.PageSessions)
	summary.AvgVisibleTimeMs = pageSummary.avgVisibleTimeMs
	summary.AvgScrollDepth = pageSummary.avgScrollDepth
	summary.TotalSectionViews = len(ds.SectionDurations)
	summary.TotalInteractions = len(ds.Events)
	summary.AvgEngagementScore = engagement.AvgScore

	return &Report{
		Summary:            summary,
		ModeBreakdown:      modeBreakdown(ds.Visits),
		TopCountries:       topCountries(ds.Visits, TopLocationsLimit),
		TopCities:          topCities(ds.Visits, TopLocationsLimit),
		Geography:          geographyTree(ds.Visits),
		VisitsOverTime:     visitsOverTime(ds.Visits, opts, VisitsOverTimeDays),
		RecentVisits:       recentVisits(ds.Visits, RecentVisitsLimit),
		Locations:          mapLocations(ds.Visits),
		HourlyDistribution: hourlyDistribution(ds.Visits, opts),
		ScreenSizes:        screenSizes(ds.Visits),
		Referrers:          topReferrers(ds.Visits, TopReferrersLimit),
		PageTiming:         pageTiming(ds.Visits, ds.PageSessions, TopPagesLimit),
		ScrollMilestones:   scrollMilestones(ds.PageSessions),
		SectionEngagement:  sectionEngagement(ds.SectionDurations),
		SectionFunnel:      sectionFunnel(ds.PageSessions, ds.SectionDurations),
		Engagement:         engagement,
		ConversionFunnel:   conversionFunnel(ds.Visits, ds.SectionDurations, ds.Events),
		TopEvents:          topEvents(ds.Events),
		RecentEvents:       recentEvents(ds.Events, RecentEventsLimit),
	}
}

// GrowthRate compares today with yesterday as a whole percentage. Growth from
// zero is reported as a flat 100.
func GrowthRate(today, yesterday int) int {
	if yesterday > 0 {
		return roundHalfUp(float64(today-yesterday) / float64(yesterday) * 100)
	}
	if today > 0 {
		return 100
	}
	return 0
}

func roundHalfUp(v float64) int {
	return int(tracking.RoundHalfUp(v))
}

// counter tallies keys while remembering the order they were first seen, so
// equal counts keep a stable order after sorting.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, seen := c.counts[key]; !seen {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// sorted returns the tallies by count descending, ties in first-seen order,
// truncated to limit when limit > 0.
func (c *counter) sorted(limit int) []NamedCount {
	out := make([]NamedCount, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, NamedCount{Name: key, Count: c.counts[key]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// distinct counts the unique non-empty values.
func distinct(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}
