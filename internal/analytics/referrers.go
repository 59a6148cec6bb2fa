package analytics

import (
	"folio/internal/pkg/referrers"
	"folio/internal/tracking"
)

// ReferrerCount is a referrer source with a display label.
type ReferrerCount struct {
	Source string `json:"source"`
	Label  string `json:"label"`
	Count  int    `json:"count"`
}

func topReferrers(visits []tracking.Visit, limit int) []ReferrerCount {
	c := newCounter()
	for _, v := range visits {
		raw := ""
		if v.Referrer != nil {
			raw = *v.Referrer
		}
		c.add(referrers.Source(raw))
	}

	sorted := c.sorted(limit)
	out := make([]ReferrerCount, 0, len(sorted))
	for _, nc := range sorted {
		label := nc.Name
		if nc.Name != referrers.Direct {
			label = referrers.FriendlyName(nc.Name)
		}
		out = append(out, ReferrerCount{Source: nc.Name, Label: label, Count: nc.Count})
	}
	return out
}
