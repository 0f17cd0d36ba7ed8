// Package week derives the canonical ISO-8601 week addressing used for
// week-scoped entities and task range queries.
//
// A week runs Monday through Sunday and belongs to the ISO week-numbering
// year containing its Thursday, so 2025-12-31 resolves to "2026-W01".
package week

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DateLayout is the calendar date format of week bounds.
const DateLayout = "2006-01-02"

// Days is the number of days in a week.
const Days = 7

var ErrInvalidID = errors.New("week id must look like YYYY-Www")

// Week is a Monday-aligned ISO week.
type Week struct {
	// Start is midnight UTC of the Monday.
	Start time.Time
	// End is midnight UTC of the Sunday.
	End  time.Time
	ID   string
	Year int
	Num  int
}

// Of returns the ISO week containing t. Only the calendar date of t in its
// own location is considered.
func Of(t time.Time) Week {
	d := dateOnly(t)
	offset := (int(d.Weekday()) + 6) % 7
	start := d.AddDate(0, 0, -offset)
	year, num := start.ISOWeek()
	return Week{
		Start: start,
		End:   start.AddDate(0, 0, Days-1),
		ID:    FormatID(year, num),
		Year:  year,
		Num:   num,
	}
}

// ID returns the canonical week id of t.
func ID(t time.Time) string { return Of(t).ID }

// OfDate resolves a YYYY-MM-DD calendar date.
func OfDate(date string) (Week, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Week{}, err
	}
	return Of(d), nil
}

// FormatID renders an ISO year and week number as YYYY-Www.
func FormatID(year, num int) string {
	return fmt.Sprintf("%d-W%02d", year, num)
}

// Parse resolves a week id back into its week. It rejects week numbers the
// ISO year does not have.
func Parse(id string) (Week, error) {
	if len(id) != 8 || id[4] != '-' || id[5] != 'W' {
		return Week{}, ErrInvalidID
	}
	year, err := strconv.Atoi(id[:4])
	if err != nil {
		return Week{}, ErrInvalidID
	}
	num, err := strconv.Atoi(id[6:])
	if err != nil || num < 1 || num > 53 {
		return Week{}, ErrInvalidID
	}
	// January 4th always falls in week 1.
	w := Of(time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC))
	w = w.Add(num - 1)
	if w.Year != year || w.Num != num {
		return Week{}, fmt.Errorf("%w: %d has no week %d", ErrInvalidID, year, num)
	}
	return w, nil
}

// ParseDate parses a YYYY-MM-DD date as midnight UTC.
func ParseDate(date string) (time.Time, error) {
	return time.Parse(DateLayout, date)
}

// StartDate returns the Monday as YYYY-MM-DD.
func (w Week) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate returns the Sunday as YYYY-MM-DD.
func (w Week) EndDate() string { return w.End.Format(DateLayout) }

// Contains reports whether the calendar date falls inside the week.
func (w Week) Contains(date string) bool {
	return date >= w.StartDate() && date <= w.EndDate()
}

// Dates lists the seven calendar dates of the week, Monday first.
func (w Week) Dates() []string {
	out := make([]string, Days)
	for i := range out {
		out[i] = w.Start.AddDate(0, 0, i).Format(DateLayout)
	}
	return out
}

// Add moves the week by n weeks.
func (w Week) Add(n int) Week { return Of(w.Start.AddDate(0, 0, 7*n)) }

// Next returns the following week.
func (w Week) Next() Week { return w.Add(1) }

// Prev returns the preceding week.
func (w Week) Prev() Week { return w.Add(-1) }

// DayIndex returns the Monday-based index (0..6) of a calendar date.
func DayIndex(date string) (int, error) {
	d, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return (int(d.Weekday()) + 6) % 7, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
