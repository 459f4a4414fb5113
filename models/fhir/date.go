package fhir

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Precision is the granularity a partial FHIR date or dateTime was written with.
type Precision int

const (
	PrecisionYear Precision = iota + 1
	PrecisionMonth
	PrecisionDay
	PrecisionMinute
	PrecisionSecond
	PrecisionMillisecond
)

func (p Precision) String() string {
	switch p {
	case PrecisionYear:
		return "YYYY"
	case PrecisionMonth:
		return "YYYY-MM"
	case PrecisionDay:
		return "YYYY-MM-DD"
	case PrecisionMinute:
		return "MINUTE"
	case PrecisionSecond:
		return "SECOND"
	case PrecisionMillisecond:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// Date represents a FHIR date (YYYY, YYYY-MM or YYYY-MM-DD)
type Date struct {
	time.Time
	Precision Precision
}

// ParseDate parses a FHIR date keeping the precision it was written with.
func ParseDate(s string) (Date, error) {
	formats := []struct {
		layout    string
		precision Precision
	}{
		{"2006-01-02", PrecisionDay},
		{"2006-01", PrecisionMonth},
		{"2006", PrecisionYear},
	}

	for _, format := range formats {
		if len(s) != len(format.layout) {
			continue
		}
		if t, err := time.Parse(format.layout, s); err == nil {
			return Date{Time: t, Precision: format.precision}, nil
		}
	}

	return Date{}, fmt.Errorf("invalid date format: %s", s)
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*d = Date{}
		return nil
	}

	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (d Date) MarshalJSON() ([]byte, error) {
	if d.Time.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(d.String())
}

// String returns the date in the precision it was parsed with
func (d Date) String() string {
	switch d.Precision {
	case PrecisionYear:
		return d.Format("2006")
	case PrecisionMonth:
		return d.Format("2006-01")
	default:
		return d.Format("2006-01-02")
	}
}

// DateTime widens the date to a DateTime with the same precision.
func (d Date) DateTime() DateTime {
	return DateTime{Time: d.Time, Precision: d.Precision}
}
