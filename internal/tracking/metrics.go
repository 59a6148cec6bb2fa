package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collection labels used by the ingestion metrics.
const (
	CollectionVisits            = "visitors"
	CollectionPageSessions      = "page_sessions"
	CollectionSectionDurations  = "section_durations"
	CollectionInteractionEvents = "interaction_events"
)

var (
	// recordsStored counts rows written per collection.
	recordsStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_tracking_records_stored_total",
		Help: "Total number of telemetry records stored, by collection",
	}, []string{"collection"})

	// payloadsRejected counts payloads refused with a client error.
	payloadsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_tracking_payloads_rejected_total",
		Help: "Total number of telemetry payloads rejected by validation, by collection",
	}, []string{"collection"})

	// storeFailures counts payloads that failed at the storage layer.
	storeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_tracking_store_failures_total",
		Help: "Total number of telemetry writes that failed, by collection",
	}, []string{"collection"})

	// preciseLocationMisses counts precise-location updates that matched no visit.
	preciseLocationMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folio_tracking_precise_location_misses_total",
		Help: "Total number of precise-location updates that matched no visit record",
	})
)

func observeRejected(collection string, err error) error {
	if IsValidationError(err) {
		payloadsRejected.WithLabelValues(collection).Inc()
	}
	return err
}

// RecordRejected counts a payload refused before it reached validation,
// such as a body that is not valid JSON.
func RecordRejected(collection string) {
	payloadsRejected.WithLabelValues(collection).Inc()
}
