package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateTime represents a FHIR dateTime or instant
type DateTime struct {
	time.Time
	Precision Precision

	// Zoned is set when the value carried a time zone. Values without one are local
	// times and are held as UTC wall-clock time.
	Zoned bool
}

// NewDateTime creates a new DateTime from a time.Time
func NewDateTime(t time.Time) DateTime {
	return DateTime{
		Time:      t,
		Precision: PrecisionMillisecond,
		Zoned:     true,
	}
}

// ParseDateTime parses every form FHIR allows for date, dateTime and instant values,
// including the time-zone-less forms used in search parameters.
func ParseDateTime(s string) (DateTime, error) {
	if s == "" {
		return DateTime{}, fmt.Errorf("empty datetime")
	}

	// Partial dates
	switch len(s) {
	case 4, 7, 10:
		d, err := ParseDate(s)
		if err != nil {
			return DateTime{}, err
		}
		return d.DateTime(), nil
	}

	formats := []struct {
		layout    string
		precision Precision
		zoned     bool
	}{
		{"2006-01-02T15:04:05Z07:00", PrecisionSecond, true},
		{"2006-01-02T15:04:05", PrecisionSecond, false},
		{"2006-01-02T15:04Z07:00", PrecisionMinute, true},
		{"2006-01-02T15:04", PrecisionMinute, false},
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format.layout, s)
		if err != nil {
			lastErr = err
			continue
		}
		precision := format.precision
		if precision == PrecisionSecond && strings.Contains(s[strings.Index(s, "T"):], ".") {
			precision = PrecisionMillisecond
		}
		return DateTime{Time: t, Precision: precision, Zoned: format.zoned}, nil
	}

	return DateTime{}, fmt.Errorf("invalid datetime format: %s (last error: %v)", s, lastErr)
}

// Bounds returns the half-open range [low, high) of instants the value stands for.
// A year-only value covers the whole year, a day covers 24 hours, and so on.
func (d DateTime) Bounds() (time.Time, time.Time) {
	low := d.Time
	switch d.Precision {
	case PrecisionYear:
		return low, low.AddDate(1, 0, 0)
	case PrecisionMonth:
		return low, low.AddDate(0, 1, 0)
	case PrecisionDay:
		return low, low.AddDate(0, 0, 1)
	case PrecisionMinute:
		return low, low.Add(time.Minute)
	case PrecisionSecond:
		return low, low.Add(time.Second)
	default:
		return low, low.Add(time.Millisecond)
	}
}

// WallClock returns t with its offset dropped: the same clock reading, held as UTC.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// String returns the datetime in FHIR format based on precision
func (d DateTime) String() string {
	if d.Time.IsZero() {
		return ""
	}

	switch d.Precision {
	case PrecisionYear:
		return d.Time.Format("2006")
	case PrecisionMonth:
		return d.Time.Format("2006-01")
	case PrecisionDay:
		return d.Time.Format("2006-01-02")
	case PrecisionMinute:
		return d.Time.Format("2006-01-02T15:04Z07:00")
	case PrecisionSecond:
		return d.Time.Format("2006-01-02T15:04:05Z07:00")
	default:
		return d.Time.Format("2006-01-02T15:04:05.000Z07:00")
	}
}

// MarshalJSON implements the json.Marshaler interface
func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*d = DateTime{}
		return nil
	}

	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
