package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DAY - Calendar date (this is a day-granular ledger)
// =============================================================================

// Day is a calendar date at UTC midnight. All ledger arithmetic is
// day-granular: each day's balance depends on the prior day's.
type Day struct {
	Time time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DayOf(t time.Time) Day {
	return NewDay(t.Year(), t.Month(), t.Day())
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayOf(t), nil
}

// Comparison
func (d Day) Before(o Day) bool        { return d.normalize().Before(o.normalize()) }
func (d Day) After(o Day) bool         { return d.normalize().After(o.normalize()) }
func (d Day) Equal(o Day) bool         { return d.normalize().Equal(o.normalize()) }
func (d Day) BeforeOrEqual(o Day) bool { return d.Before(o) || d.Equal(o) }
func (d Day) AfterOrEqual(o Day) bool  { return d.After(o) || d.Equal(o) }
func (d Day) IsZero() bool             { return d.Time.IsZero() }

func (d Day) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Day) AddDays(n int) Day { return DayOf(d.Time.AddDate(0, 0, n)) }
func (d Day) Prev() Day         { return d.AddDays(-1) }
func (d Day) Next() Day         { return d.AddDays(1) }

func (d Day) MonthOf() Month { return Month{Year: d.Time.Year(), Month: d.Time.Month()} }

func (d Day) String() string { return d.normalize().Format("2006-01-02") }

// DaysBetween returns the number of days from 'from' to 'to' (to - from).
func DaysBetween(from, to Day) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// MONTH - Snapshot chaining boundary
// =============================================================================

// Month identifies a calendar month. Month-end closing balances chain into
// the next month's opening balances.
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month { return Month{Year: year, Month: month} }

func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q: %w", s, err)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

func (m Month) Start() Day { return NewDay(m.Year, m.Month, 1) }

func (m Month) End() Day { return m.Next().Start().Prev() }

func (m Month) Contains(d Day) bool { return d.MonthOf() == m }

func (m Month) Before(o Month) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}

func (m Month) After(o Month) bool { return o.Before(m) }

func (m Month) String() string {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}
