package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/br7tech/billdesk/internal/platform/httpx"
)

// DateLayout is the calendar day format used in query strings.
const DateLayout = "2006-01-02"

// DateRange is a half-open interval [From, Until) of whole days in the shop's
// time zone. A zero bound is open.
type DateRange struct {
	From  time.Time
	Until time.Time
}

// IsZero reports whether the range places no bound at all.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.Until.IsZero()
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.Until.IsZero() && !t.Before(r.Until) {
		return false
	}
	return true
}

// Day returns the range covering one calendar day of t in loc.
func Day(t time.Time, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return DateRange{From: start, Until: start.AddDate(0, 0, 1)}
}

// ParseDateRange reads either a single date or a from/to pair, both inclusive
// and formatted as YYYY-MM-DD. The literal "today" is accepted for date.
func ParseDateRange(date, from, to string, now time.Time, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.Local
	}
	date, from, to = strings.TrimSpace(date), strings.TrimSpace(from), strings.TrimSpace(to)
	if date != "" {
		if date == "today" {
			return Day(now, loc), nil
		}
		day, err := parseDay(date, loc)
		if err != nil {
			return DateRange{}, err
		}
		return Day(day, loc), nil
	}

	var r DateRange
	if from != "" {
		day, err := parseDay(from, loc)
		if err != nil {
			return DateRange{}, err
		}
		r.From = day
	}
	if to != "" {
		day, err := parseDay(to, loc)
		if err != nil {
			return DateRange{}, err
		}
		r.Until = day.AddDate(0, 0, 1)
	}
	if !r.From.IsZero() && !r.Until.IsZero() && !r.From.Before(r.Until) {
		return DateRange{}, fmt.Errorf("%w: from must not be after to", httpx.ErrValidation)
	}
	return r, nil
}

func parseDay(raw string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", httpx.ErrValidation, raw)
	}
	return day, nil
}
