package tracking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/pkg/geoip"
	"folio/internal/testsupport"
	"folio/internal/tracking"
)

func TestVisitsBetween(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	base := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	testsupport.CreateVisit(t, db, testsupport.VisitFixture{VisitorID: "a", Timestamp: base})
	testsupport.CreateVisit(t, db, testsupport.VisitFixture{VisitorID: "b", Timestamp: base.Add(time.Hour)})
	testsupport.CreateVisit(t, db, testsupport.VisitFixture{VisitorID: "c", Timestamp: base.Add(-48 * time.Hour)})
	testsupport.CreateVisit(t, db, testsupport.VisitFixture{VisitorID: "dev", City: geoip.LocalCity, Country: geoip.LocalCountry, Timestamp: base})

	visits, err := tracking.VisitsBetween(context.Background(), db, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, "b", visits[0].VisitorID, "newest first")
	assert.Equal(t, "a", visits[1].VisitorID)
}

func TestCollectionsBetweenAreInclusive(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 5, 31, 23, 59, 59, 0, time.UTC)

	testsupport.CreatePageSession(t, db, "v", "s", "/", 1000, 50, from)
	testsupport.CreatePageSession(t, db, "v", "s", "/", 1000, 50, to.Add(time.Second))
	testsupport.CreateSectionDuration(t, db, "v", "s", "about", 800, to)
	testsupport.CreateInteractionEvent(t, db, "v", "s", tracking.EventModeSwitch, from.Add(-time.Second))

	ctx := context.Background()
	sessions, err := tracking.PageSessionsBetween(ctx, db, from, to)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	durations, err := tracking.SectionDurationsBetween(ctx, db, from, to)
	require.NoError(t, err)
	assert.Len(t, durations, 1)

	events, err := tracking.InteractionEventsBetween(ctx, db, from, to)
	require.NoError(t, err)
	assert.Empty(t, events)
}
