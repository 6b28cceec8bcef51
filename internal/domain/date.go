package domain

import (
	"fmt"
	"time"
)

// Date is a calendar day in compact YYYYMMDD form, the unit of acquisition
// and processing.
type Date string

// ParseDate validates a YYYYMMDD string.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse("20060102", s); err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date(s), nil
}

func (d Date) String() string { return string(d) }

// Year returns the calendar year.
func (d Date) Year() int {
	t, _ := time.Parse("20060102", string(d))
	return t.Year()
}

// Month returns the calendar month, 1-12.
func (d Date) Month() int {
	t, _ := time.Parse("20060102", string(d))
	return int(t.Month())
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	t, _ := time.Parse("20060102", string(d))
	return t
}

// DateRange returns every date from start through end inclusive.
func DateRange(start, end Date) ([]Date, error) {
	s, err := time.Parse("20060102", string(start))
	if err != nil {
		return nil, fmt.Errorf("parse start date %q: %w", start, err)
	}
	e, err := time.Parse("20060102", string(end))
	if err != nil {
		return nil, fmt.Errorf("parse end date %q: %w", end, err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("date range end %s before start %s", end, start)
	}
	var out []Date
	for t := s; !t.After(e); t = t.AddDate(0, 0, 1) {
		out = append(out, Date(t.Format("20060102")))
	}
	return out, nil
}
