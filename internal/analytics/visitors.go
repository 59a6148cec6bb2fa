package analytics

import (
	"strings"
	"time"

	"folio/internal/tracking"
	"folio/internal/visitors"
)

// ModeBreakdown counts visits per portfolio mode; legacy "phd" counts as xr.
type ModeBreakdown struct {
	XR        int `json:"xr"`
	FullStack int `json:"fullstack"`
}

// CityCount is a city with the country it was first seen in.
type CityCount struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// CountryNode is the top level of the geography tree.
type CountryNode struct {
	Country string      `json:"country"`
	Count   int         `json:"count"`
	States  []StateNode `json:"states"`
}

// StateNode is a region within a country.
type StateNode struct {
	State  string       `json:"state"`
	Count  int          `json:"count"`
	Cities []NamedCount `json:"cities"`
}

// DailyCount is the number of visits on one local calendar day.
type DailyCount struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// HourlyCount is the number of today's visits in one local hour.
type HourlyCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// RecentVisit is the projection of a visit shown in the recent list.
type RecentVisit struct {
	Timestamp    time.Time `json:"timestamp"`
	City         string    `json:"city"`
	Country      string    `json:"country"`
	Mode         *string   `json:"mode"`
	VisitorAlias string    `json:"visitorAlias,omitempty"`
}

// MapLocation is a visit with known coordinates.
type MapLocation struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	City string  `json:"city"`
}

// Screen size buckets by viewport width.
const (
	ScreenMobile  = "Mobile"
	ScreenTablet  = "Tablet"
	ScreenDesktop = "Desktop"

	mobileMaxWidth = 768
	tabletMaxWidth = 1024
)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func visitorSummary(visits []tracking.Visit, opts Options) Summary {
	today := startOfDay(opts.Now)
	yesterday := today.AddDate(0, 0, -1)
	weekStart := today.AddDate(0, 0, -7)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, opts.Location)

	s := Summary{TotalVisitors: len(visits)}
	visitorIDs := make([]string, 0, len(visits))
	sessionIDs := make([]string, 0, len(visits))

	for _, v := range visits {
		ts := v.Timestamp.In(opts.Location)
		if !ts.Before(today) {
			s.TodayVisitors++
		}
		if !ts.Before(yesterday) && ts.Before(today) {
			s.YesterdayVisitors++
		}
		if !ts.Before(weekStart) {
			s.ThisWeekVisitors++
		}
		if !ts.Before(monthStart) {
			s.ThisMonthVisitors++
		}
		visitorIDs = append(visitorIDs, v.VisitorID)
		sessionIDs = append(sessionIDs, v.SessionID)
	}

	s.UniqueVisitors = distinct(visitorIDs)
	s.UniqueSessions = distinct(sessionIDs)
	s.GrowthRate = GrowthRate(s.TodayVisitors, s.YesterdayVisitors)
	return s
}

func visitMode(v tracking.Visit) string {
	if v.Mode == nil {
		return ""
	}
	return tracking.NormalizeMode(*v.Mode)
}

func modeBreakdown(visits []tracking.Visit) ModeBreakdown {
	var mb ModeBreakdown
	for _, v := range visits {
		switch visitMode(v) {
		case tracking.ModeXR:
			mb.XR++
		case tracking.ModeFullStack:
			mb.FullStack++
		}
	}
	return mb
}

func topCountries(visits []tracking.Visit, limit int) []NamedCount {
	c := newCounter()
	for _, v := range visits {
		c.add(v.Country)
	}
	return c.sorted(limit)
}

func topCities(visits []tracking.Visit, limit int) []CityCount {
	c := newCounter()
	countryOf := make(map[string]string)
	for _, v := range visits {
		if _, seen := countryOf[v.City]; !seen {
			countryOf[v.City] = v.Country
		}
		c.add(v.City)
	}

	sorted := c.sorted(limit)
	out := make([]CityCount, 0, len(sorted))
	for _, nc := range sorted {
		out = append(out, CityCount{City: nc.Name, Country: countryOf[nc.Name], Count: nc.Count})
	}
	return out
}

// geographyTree keeps every country; only the top-level lists are capped.
func geographyTree(visits []tracking.Visit) []CountryNode {
	countries := newCounter()
	states := make(map[string]*counter)
	cities := make(map[string]map[string]*counter)

	for _, v := range visits {
		countries.add(v.Country)

		if states[v.Country] == nil {
			states[v.Country] = newCounter()
			cities[v.Country] = make(map[string]*counter)
		}
		states[v.Country].add(v.Region)

		if cities[v.Country][v.Region] == nil {
			cities[v.Country][v.Region] = newCounter()
		}
		cities[v.Country][v.Region].add(v.City)
	}

	tree := make([]CountryNode, 0, len(countries.order))
	for _, country := range countries.sorted(0) {
		node := CountryNode{Country: country.Name, Count: country.Count}
		for _, state := range states[country.Name].sorted(0) {
			node.States = append(node.States, StateNode{
				State:  state.Name,
				Count:  state.Count,
				Cities: cities[country.Name][state.Name].sorted(0),
			})
		}
		tree = append(tree, node)
	}
	return tree
}

// visitsOverTime buckets the last days local calendar days, oldest first,
// ending with today.
func visitsOverTime(visits []tracking.Visit, opts Options, days int) []DailyCount {
	today := startOfDay(opts.Now)
	out := make([]DailyCount, 0, days)
	for i := days - 1; i >= 0; i-- {
		dayStart := today.AddDate(0, 0, -i)
		dayEnd := dayStart.AddDate(0, 0, 1)

		count := 0
		for _, v := range visits {
			ts := v.Timestamp.In(opts.Location)
			if !ts.Before(dayStart) && ts.Before(dayEnd) {
				count++
			}
		}
		out = append(out, DailyCount{
			Date:  dayStart.Format("2006-01-02"),
			Label: dayStart.Format("Jan 2"),
			Count: count,
		})
	}
	return out
}

func recentVisits(visits []tracking.Visit, limit int) []RecentVisit {
	n := min(limit, len(visits))
	out := make([]RecentVisit, 0, n)
	for _, v := range visits[:n] {
		rv := RecentVisit{
			Timestamp: v.Timestamp.UTC(),
			City:      v.City,
			Country:   v.Country,
		}
		if mode := visitMode(v); mode != "" {
			rv.Mode = &mode
		}
		if v.VisitorID != "" {
			rv.VisitorAlias = visitors.VisitorAlias(v.VisitorID)
		}
		out = append(out, rv)
	}
	return out
}

func mapLocations(visits []tracking.Visit) []MapLocation {
	out := make([]MapLocation, 0)
	for _, v := range visits {
		if v.Latitude == nil || v.Longitude == nil {
			continue
		}
		out = append(out, MapLocation{Lat: *v.Latitude, Lng: *v.Longitude, City: v.City})
	}
	return out
}

func hourlyDistribution(visits []tracking.Visit, opts Options) []HourlyCount {
	today := startOfDay(opts.Now)
	tomorrow := today.AddDate(0, 0, 1)

	out := make([]HourlyCount, 24)
	for hour := range out {
		out[hour].Hour = hour
	}
	for _, v := range visits {
		ts := v.Timestamp.In(opts.Location)
		if ts.Before(today) || !ts.Before(tomorrow) {
			continue
		}
		out[ts.Hour()].Count++
	}
	return out
}

// ScreenBucket classifies a "WIDTHxHEIGHT" resolution. The width is read as
// its leading digits; a value without any is classified as Desktop.
func ScreenBucket(resolution string) string {
	resolution = strings.TrimSpace(resolution)
	width, digits := 0, 0
	for _, r := range resolution {
		if r < '0' || r > '9' {
			break
		}
		width = width*10 + int(r-'0')
		digits++
	}

	switch {
	case digits > 0 && width < mobileMaxWidth:
		return ScreenMobile
	case digits > 0 && width < tabletMaxWidth:
		return ScreenTablet
	default:
		return ScreenDesktop
	}
}

func screenSizes(visits []tracking.Visit) []NamedCount {
	counts := map[string]int{}
	for _, v := range visits {
		if v.ScreenResolution == nil || strings.TrimSpace(*v.ScreenResolution) == "" {
			continue
		}
		counts[ScreenBucket(*v.ScreenResolution)]++
	}
	return []NamedCount{
		{Name: ScreenMobile, Count: counts[ScreenMobile]},
		{Name: ScreenTablet, Count: counts[ScreenTablet]},
		{Name: ScreenDesktop, Count: counts[ScreenDesktop]},
	}
}
