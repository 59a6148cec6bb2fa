package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"folio/internal/pkg/geoip"
)

// VisitPayload is the body of a visit ping. Every field is optional.
type VisitPayload struct {
	VisitorID        string `json:"visitorId"`
	SessionID        string `json:"sessionId"`
	Mode             string `json:"mode"`
	Pathname         string `json:"pathname"`
	UserAgent        string `json:"userAgent"`
	Referrer         string `json:"referrer"`
	ScreenResolution string `json:"screenResolution"`
}

// PreciseLocationPayload carries browser-reported coordinates for an existing visit.
type PreciseLocationPayload struct {
	VisitorID string   `json:"visitorId" validate:"required"`
	SessionID string   `json:"sessionId" validate:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// PageSessionPayload summarises one page view.
type PageSessionPayload struct {
	VisitorID     string   `json:"visitorId" validate:"required"`
	SessionID     string   `json:"sessionId" validate:"required"`
	Pathname      string   `json:"pathname"`
	VisibleTimeMs *float64 `json:"visibleTimeMs"`
	TotalTimeMs   *float64 `json:"totalTimeMs"`
	ScrollDepth   *float64 `json:"scrollDepth"`
	Mode          string   `json:"mode"`
}

// SectionDurationEntry is one visible interval of a section.
type SectionDurationEntry struct {
	SectionID  string  `json:"sectionId"`
	DurationMs float64 `json:"durationMs"`
}

// UnmarshalJSON decodes an entry leniently: a sectionId that is not a string
// or a durationMs that is not a number leaves the field zero, so the entry
// is filtered out instead of failing the whole batch.
func (e *SectionDurationEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		SectionID  json.RawMessage `json:"sectionId"`
		DurationMs json.RawMessage `json:"durationMs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = SectionDurationEntry{}
	if len(raw.SectionID) > 0 {
		_ = json.Unmarshal(raw.SectionID, &e.SectionID)
	}
	if len(raw.DurationMs) > 0 {
		if err := json.Unmarshal(raw.DurationMs, &e.DurationMs); err != nil {
			e.DurationMs = 0
		}
	}
	return nil
}

// SectionDurationsPayload is a batch of section intervals flushed by the client.
type SectionDurationsPayload struct {
	VisitorID string                 `json:"visitorId" validate:"required"`
	SessionID string                 `json:"sessionId" validate:"required"`
	Durations []SectionDurationEntry `json:"durations"`
	Mode      string                 `json:"mode"`
	Pathname  string                 `json:"pathname"`
}

// InteractionEventPayload is one discrete user action.
// Metadata values that are not strings are stored as their JSON text.
type InteractionEventPayload struct {
	VisitorID   string         `json:"visitorId" validate:"required"`
	SessionID   string         `json:"sessionId" validate:"required"`
	EventType   string         `json:"eventType" validate:"required"`
	EventTarget string         `json:"eventTarget"`
	Metadata    map[string]any `json:"metadata"`
	Pathname    string         `json:"pathname"`
	Mode        string         `json:"mode"`
	Timestamp   string         `json:"timestamp"`
}

// RecordVisit geolocates clientIP and stores a new visit.
func RecordVisit(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, payload *VisitPayload, clientIP string) (*Visit, error) {
	location := geoip.Lookup(clientIP)

	visit := &Visit{
		VisitorID:        strings.TrimSpace(payload.VisitorID),
		SessionID:        strings.TrimSpace(payload.SessionID),
		IP:               clientIP,
		City:             location.City,
		Country:          location.Country,
		Region:           location.Region,
		Latitude:         location.Latitude,
		Longitude:        location.Longitude,
		Mode:             optionalString(payload.Mode),
		Pathname:         optionalString(payload.Pathname),
		UserAgent:        optionalString(payload.UserAgent),
		Referrer:         optionalString(payload.Referrer),
		ScreenResolution: optionalString(payload.ScreenResolution),
		Timestamp:        time.Now().UTC(),
	}

	db := dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(visit).Error
	})
	if err != nil {
		storeFailures.WithLabelValues(CollectionVisits).Inc()
		logger.Error("Failed to store visit", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store visit: %w", err)
	}

	recordsStored.WithLabelValues(CollectionVisits).Inc()
	logger.Debug("Stored visit",
		slog.String("city", visit.City),
		slog.String("country", visit.Country))
	return visit, nil
}

// UpdatePreciseLocation sets browser-reported coordinates on the visits matching
// the (visitorId, sessionId) pair. It never inserts: when the visit has not been
// stored yet the update matches nothing and still succeeds. It returns the
// number of rows updated.
func UpdatePreciseLocation(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, payload *PreciseLocationPayload) (int64, error) {
	payload.VisitorID = strings.TrimSpace(payload.VisitorID)
	payload.SessionID = strings.TrimSpace(payload.SessionID)
	if err := validatePayload(payload); err != nil {
		return 0, observeRejected(CollectionVisits, err)
	}

	if payload.Latitude == nil || payload.Longitude == nil {
		logger.Debug("Precise location without coordinates, nothing to update",
			slog.String("visitor_id", payload.VisitorID))
		return 0, nil
	}

	var updated int64
	db := dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Model(&Visit{}).
			Where("visitor_id = ? AND session_id = ?", payload.VisitorID, payload.SessionID).
			Updates(map[string]any{
				"latitude":         *payload.Latitude,
				"longitude":        *payload.Longitude,
				"precise_location": true,
			})
		updated = result.RowsAffected
		return result.Error
	})
	if err != nil {
		storeFailures.WithLabelValues(CollectionVisits).Inc()
		logger.Error("Failed to update precise location", slog.Any("error", err))
		return 0, fmt.Errorf("failed to update precise location: %w", err)
	}

	if updated == 0 {
		preciseLocationMisses.Inc()
		logger.Debug("Precise location matched no visit",
			slog.String("visitor_id", payload.VisitorID),
			slog.String("session_id", payload.SessionID))
	}
	return updated, nil
}

// RecordPageSession validates and stores one page-session summary.
// Numeric fields are rounded and scroll depth is clamped into [0, 100].
func RecordPageSession(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, payload *PageSessionPayload) (*PageSession, error) {
	payload.VisitorID = strings.TrimSpace(payload.VisitorID)
	payload.SessionID = strings.TrimSpace(payload.SessionID)
	if err := validatePayload(payload); err != nil {
		return nil, observeRejected(CollectionPageSessions, err)
	}

	if payload.VisibleTimeMs == nil {
		return nil, observeRejected(CollectionPageSessions, newValidationError("visibleTimeMs is required"))
	}
	visible := *payload.VisibleTimeMs
	if math.IsNaN(visible) || math.IsInf(visible, 0) || visible < 0 {
		return nil, observeRejected(CollectionPageSessions, newValidationError("visibleTimeMs must be a non-negative number"))
	}
	if visible > MaxDurationMs {
		return nil, observeRejected(CollectionPageSessions, newValidationError("visibleTimeMs is out of range"))
	}

	session := &PageSession{
		VisitorID:     payload.VisitorID,
		SessionID:     payload.SessionID,
		Pathname:      payload.Pathname,
		Mode:          payload.Mode,
		VisibleTimeMs: RoundHalfUp(visible),
		TotalTimeMs:   clampDurationMs(payload.TotalTimeMs),
		ScrollDepth:   ClampScrollDepth(valueOrZero(payload.ScrollDepth)),
		Timestamp:     time.Now().UTC(),
	}

	db := dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err != nil {
		storeFailures.WithLabelValues(CollectionPageSessions).Inc()
		logger.Error("Failed to store page session", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store page session: %w", err)
	}

	recordsStored.WithLabelValues(CollectionPageSessions).Inc()
	return session, nil
}

// RecordSectionDurations stores every valid entry of a batch in one write.
// Entries without a section id, with a non-positive duration or with one
// above MaxDurationMs are dropped;
// the batch is rejected when nothing valid remains.
func RecordSectionDurations(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, payload *SectionDurationsPayload) ([]SectionDuration, error) {
	payload.VisitorID = strings.TrimSpace(payload.VisitorID)
	payload.SessionID = strings.TrimSpace(payload.SessionID)
	if err := validatePayload(payload); err != nil {
		return nil, observeRejected(CollectionSectionDurations, err)
	}
	if len(payload.Durations) == 0 {
		return nil, observeRejected(CollectionSectionDurations, newValidationError("durations must be a non-empty array"))
	}

	now := time.Now().UTC()
	records := make([]SectionDuration, 0, len(payload.Durations))
	for _, entry := range payload.Durations {
		sectionID := strings.TrimSpace(entry.SectionID)
		if sectionID == "" || math.IsNaN(entry.DurationMs) || entry.DurationMs > MaxDurationMs {
			continue
		}
		duration := RoundHalfUp(entry.DurationMs)
		if duration <= 0 {
			continue
		}
		records = append(records, SectionDuration{
			VisitorID:  payload.VisitorID,
			SessionID:  payload.SessionID,
			SectionID:  sectionID,
			DurationMs: duration,
			Mode:       payload.Mode,
			Pathname:   payload.Pathname,
			Timestamp:  now,
		})
	}

	if len(records) == 0 {
		return nil, observeRejected(CollectionSectionDurations, newValidationError("No valid section durations"))
	}
	if dropped := len(payload.Durations) - len(records); dropped > 0 {
		logger.Debug("Dropped invalid section durations", slog.Int("dropped", dropped))
	}

	db := dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(&records).Error
	})
	if err != nil {
		storeFailures.WithLabelValues(CollectionSectionDurations).Inc()
		logger.Error("Failed to store section durations", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store section durations: %w", err)
	}

	recordsStored.WithLabelValues(CollectionSectionDurations).Add(float64(len(records)))
	return records, nil
}

// RecordInteractionEvent validates the event type against the allow-list and stores it.
func RecordInteractionEvent(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, payload *InteractionEventPayload) (*InteractionEvent, error) {
	payload.VisitorID = strings.TrimSpace(payload.VisitorID)
	payload.SessionID = strings.TrimSpace(payload.SessionID)
	if err := validatePayload(payload); err != nil {
		return nil, observeRejected(CollectionInteractionEvents, err)
	}

	eventType := EventType(payload.EventType)
	if !eventType.IsValid() {
		return nil, observeRejected(CollectionInteractionEvents, newValidationError("Invalid eventType"))
	}

	now := time.Now().UTC()
	event := &InteractionEvent{
		VisitorID:   payload.VisitorID,
		SessionID:   payload.SessionID,
		EventType:   eventType,
		EventTarget: payload.EventTarget,
		Metadata:    datatypes.NewJSONType(stringifyMetadata(payload.Metadata)),
		Pathname:    payload.Pathname,
		Mode:        payload.Mode,
		Timestamp:   parseClientTimestamp(payload.Timestamp, now),
		CreatedAt:   now,
	}

	db := dbManager.GetConnection().WithContext(ctx)
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(event).Error
	})
	if err != nil {
		storeFailures.WithLabelValues(CollectionInteractionEvents).Inc()
		logger.Error("Failed to store interaction event",
			slog.String("event_type", payload.EventType),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to store interaction event: %w", err)
	}

	recordsStored.WithLabelValues(CollectionInteractionEvents).Inc()
	return event, nil
}

// RoundHalfUp rounds to the nearest integer with halves going towards
// positive infinity, the rule the browser client applies. It is the only
// rounding used by ingestion and the report.
func RoundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}

// MaxDurationMs is the largest duration ingestion accepts: one day.
const MaxDurationMs = 24 * 60 * 60 * 1000

// ClampScrollDepth rounds a scroll percentage and bounds it to [0, 100].
// NaN counts as 0.
func ClampScrollDepth(depth float64) int {
	switch {
	case math.IsNaN(depth) || depth <= 0:
		return 0
	case depth >= 100:
		return 100
	}
	return int(RoundHalfUp(depth))
}

// clampDurationMs rounds an optional duration after bounding it to
// [0, MaxDurationMs]; the bound is applied first so huge values never
// overflow the integer conversion.
func clampDurationMs(v *float64) int64 {
	ms := valueOrZero(v)
	switch {
	case math.IsNaN(ms) || ms <= 0:
		return 0
	case ms >= MaxDurationMs:
		return MaxDurationMs
	}
	return RoundHalfUp(ms)
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func stringifyMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			out[key] = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out[key] = string(encoded)
		}
	}
	return out
}

func parseClientTimestamp(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return fallback
	}
	return ts.UTC()
}
