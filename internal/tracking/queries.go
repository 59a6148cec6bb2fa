package tracking

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"folio/internal/pkg/geoip"
)

// Rows are returned newest first; id breaks timestamp ties so repeated reads
// of unchanged data come back in the same order.
const newestFirst = "timestamp DESC, id DESC"

// VisitsBetween returns visits with from <= timestamp <= to, excluding
// development traffic.
func VisitsBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Visit, error) {
	var visits []Visit
	err := db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Where("city <> ? AND country <> ?", geoip.LocalCity, geoip.LocalCountry).
		Order(newestFirst).
		Find(&visits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load visits: %w", err)
	}
	return visits, nil
}

// PageSessionsBetween returns page sessions with from <= timestamp <= to.
func PageSessionsBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]PageSession, error) {
	var sessions []PageSession
	err := db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Order(newestFirst).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load page sessions: %w", err)
	}
	return sessions, nil
}

// SectionDurationsBetween returns section intervals with from <= timestamp <= to.
func SectionDurationsBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]SectionDuration, error) {
	var durations []SectionDuration
	err := db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Order(newestFirst).
		Find(&durations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load section durations: %w", err)
	}
	return durations, nil
}

// InteractionEventsBetween returns interaction events with from <= timestamp <= to.
func InteractionEventsBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]InteractionEvent, error) {
	var events []InteractionEvent
	err := db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UTC(), to.UTC()).
		Order(newestFirst).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction events: %w", err)
	}
	return events, nil
}
