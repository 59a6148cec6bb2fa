package analytics

import (
	"context"

	"gorm.io/gorm"

	"folio/internal/pkg/async"
	"folio/internal/tracking"
)

// Dataset is the filtered record set a report is computed from. Every slice
// is ordered newest first.
type Dataset struct {
	Visits           []tracking.Visit
	PageSessions     []tracking.PageSession
	SectionDurations []tracking.SectionDuration
	Events           []tracking.InteractionEvent
}

// LoadDataset reads the four collections for window concurrently. The loads
// are independent; small skew between them is acceptable.
func LoadDataset(ctx context.Context, db *gorm.DB, window Window) (*Dataset, error) {
	ds := &Dataset{}
	from, to := window.From, window.To

	tasks := []async.Task{
		{
			Name: "visits",
			Execute: func(ctx context.Context) (err error) {
				ds.Visits, err = tracking.VisitsBetween(ctx, db, from, to)
				return err
			},
		},
		{
			Name: "page_sessions",
			Execute: func(ctx context.Context) (err error) {
				ds.PageSessions, err = tracking.PageSessionsBetween(ctx, db, from, to)
				return err
			},
		},
		{
			Name: "section_durations",
			Execute: func(ctx context.Context) (err error) {
				ds.SectionDurations, err = tracking.SectionDurationsBetween(ctx, db, from, to)
				return err
			},
		},
		{
			Name: "interaction_events",
			Execute: func(ctx context.Context) (err error) {
				ds.Events, err = tracking.InteractionEventsBetween(ctx, db, from, to)
				return err
			},
		},
	}

	if err := async.NewPool(len(tasks)).Execute(ctx, tasks); err != nil {
		return nil, err
	}
	return ds, nil
}
