package timeframe

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// ErrInvalidDate is wrapped by every parse failure.
var ErrInvalidDate = errors.New("invalid date")

type TimeFrameParserParams struct {
	FromDate string
	ToDate   string
	// DefaultRangeDays sizes the window when FromDate is empty.
	DefaultRangeDays int
}

type TimeFrameParser struct {
	timeProvider TimeProvider
	location     *time.Location
}

// NewTimeFrameParser returns a parser that reads date-only values in loc.
func NewTimeFrameParser(loc *time.Location, timeProvider ...TimeProvider) *TimeFrameParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	if loc == nil {
		loc = time.UTC
	}

	return &TimeFrameParser{
		timeProvider: provider,
		location:     loc,
	}
}

// ParseTimeFrame resolves from/to. Each accepts YYYY-MM-DD or RFC 3339; a
// date-only "to" covers the whole day. Missing values default to the trailing
// DefaultRangeDays ending now.
func (p *TimeFrameParser) ParseTimeFrame(params TimeFrameParserParams) (*TimeFrame, error) {
	now := p.timeProvider.Now(p.location)

	days := params.DefaultRangeDays
	if days <= 0 {
		days = 30
	}

	to, err := p.parseDate(params.ToDate, now, true)
	if err != nil {
		return nil, fmt.Errorf("invalid 'to' date: %w", err)
	}

	from, err := p.parseDate(params.FromDate, now.AddDate(0, 0, -days), false)
	if err != nil {
		return nil, fmt.Errorf("invalid 'from' date: %w", err)
	}

	tf, err := NewTimeFrame(from, to, p.location)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDate, err)
	}
	return tf, nil
}

func (p *TimeFrameParser) parseDate(value string, defaultDate time.Time, isEndDate bool) (time.Time, error) {
	if value == "" {
		return defaultDate, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}

	date, err := time.ParseInLocation(dateLayout, value, p.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}

	if isEndDate {
		return time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, p.location), nil
	}
	return date, nil
}
