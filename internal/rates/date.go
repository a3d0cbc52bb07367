package rates

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the textual date formats accepted by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	"20060102",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
}

// serialEpoch is day zero of spreadsheet serial dates.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Date is a calendar date without time of day or location.
// It is comparable and can be used as a map key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized date for year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses s using any of the supported layouts.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	// Sheets sometimes hand back "2024-01-02 00:00:00".
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

// DateFromSerial converts a spreadsheet serial day number to a Date.
func DateFromSerial(serial float64) (Date, error) {
	if serial < 1 || serial > 2958465 {
		return Date{}, fmt.Errorf("serial date %v out of range", serial)
	}
	return DateOf(serialEpoch.AddDate(0, 0, int(serial))), nil
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// DateSet is a set of dates used for membership tests.
type DateSet map[Date]struct{}

// NewDateSet returns a set holding dates.
func NewDateSet(dates ...Date) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

// Add inserts d into the set.
func (s DateSet) Add(d Date) {
	s[d] = struct{}{}
}

// Has reports whether d is in the set.
func (s DateSet) Has(d Date) bool {
	_, ok := s[d]
	return ok
}

// Len returns the number of dates in the set.
func (s DateSet) Len() int {
	return len(s)
}
