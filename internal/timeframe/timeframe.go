// Package timeframe turns report query parameters into a concrete time window.
package timeframe

import (
	"fmt"
	"time"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider reads the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// TimeFrame is an inclusive [From, To] window stored in UTC.
type TimeFrame struct {
	From     time.Time
	To       time.Time
	Location *time.Location
}

// NewTimeFrame builds a window from two instants, converting them to UTC.
func NewTimeFrame(from, to time.Time, loc *time.Location) (*TimeFrame, error) {
	if loc == nil {
		loc = time.UTC
	}
	tf := &TimeFrame{From: from.UTC(), To: to.UTC(), Location: loc}
	if err := tf.Validate(); err != nil {
		return nil, err
	}
	return tf, nil
}

func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

func (tf *TimeFrame) Validate() error {
	if tf.From.After(tf.To) {
		return fmt.Errorf("from (%s) is after to (%s)", tf.From.Format(time.RFC3339), tf.To.Format(time.RFC3339))
	}
	return nil
}
