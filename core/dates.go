package core

import (
	"bytes"
	"database/sql/driver"
	"time"

	"github.com/pkg/errors"
)

const DateLayout = "2006-01-02"

// NowFunc returns the current time. mockable
var NowFunc = time.Now

// TruncateDate drops the clock part of t, keeping its calendar date in UTC.
func TruncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewDate returns the UTC midnight of the given calendar date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date (or a RFC3339 timestamp) into a UTC date.
func ParseDate(s string) (time.Time, error) {
	s = CleanString(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return TruncateDate(t), nil
}

// MonthRange returns the first and last calendar days of the given month.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	first := NewDate(year, month, 1)
	return first, first.AddDate(0, 1, -1)
}

// MonthOf returns the first and last calendar days of the month t falls in.
func MonthOf(t time.Time) (time.Time, time.Time) {
	return MonthRange(t.Year(), t.Month())
}

// NextMonth returns the month following t's month, rolling the year over after December.
func NextMonth(t time.Time) (int, time.Month) {
	if t.Month() == time.December {
		return t.Year() + 1, time.January
	}
	return t.Year(), t.Month() + 1
}

// DateWithin reports whether d lies in [from, to] (dates only).
func DateWithin(d, from, to time.Time) bool {
	d = TruncateDate(d)
	return !d.Before(TruncateDate(from)) && !d.After(TruncateDate(to))
}

// Date is a calendar date used for request payloads; it (un)marshals as YYYY-MM-DD.
type Date struct {
	time.Time
}

func DateOf(t time.Time) Date { return Date{TruncateDate(t)} }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		d.Time = time.Time{}
		return nil
	}
	t, err := ParseDate(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}

func (d *Date) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		d.Time = time.Time{}
	case time.Time:
		d.Time = TruncateDate(v)
	case []byte:
		return d.UnmarshalJSON(v)
	case string:
		return d.UnmarshalJSON([]byte(v))
	default:
		return errors.Errorf("cannot scan %T into core.Date", value)
	}
	return nil
}

// UnmarshalParam lets echo bind query and path params into a Date.
func (d *Date) UnmarshalParam(param string) error {
	return d.UnmarshalJSON([]byte(param))
}
