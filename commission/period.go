package commission

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD - A calendar month, the unit of commission accounting
// =============================================================================

// Period identifies a calendar month as YYYY-MM. Commission records are
// keyed by (station, Period); all date math in the engine is month-based.
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses a YYYY-MM string. Malformed input returns an
// InvalidPeriodError wrapping ErrInvalidPeriod.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, &InvalidPeriodError{Input: s, Reason: "expected YYYY-MM"}
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// ParsePeriodNotFuture parses a YYYY-MM string and rejects periods strictly
// after the month containing now. The current, in-progress month is allowed.
func ParsePeriodNotFuture(s string, now time.Time) (Period, error) {
	p, err := ParsePeriod(s)
	if err != nil {
		return Period{}, err
	}
	if p.After(PeriodOf(now)) {
		return Period{}, &InvalidPeriodError{Input: s, Reason: "period is in the future"}
	}
	return p, nil
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// Start returns midnight UTC on the first day of the month.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns midnight UTC on the last day of the month.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

// DaysInMonth returns the number of calendar days in the month.
func (p Period) DaysInMonth() int {
	return p.End().Day()
}

// Contains reports whether the instant falls inside the month.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

func (p Period) Equal(other Period) bool {
	return p.Year == other.Year && p.Month == other.Month
}

func (p Period) After(other Period) bool {
	if p.Year != other.Year {
		return p.Year > other.Year
	}
	return p.Month > other.Month
}

// Previous returns the preceding calendar month.
func (p Period) Previous() Period {
	t := p.Start().AddDate(0, -1, 0)
	return Period{Year: t.Year(), Month: t.Month()}
}

// ClampedEnd returns the effective end of the period for aggregation.
// For the current, in-progress month the end is clamped to today so that
// partial-month queries do not reach into days that cannot have data yet.
// Past, closed months are never clamped.
func (p Period) ClampedEnd(now time.Time) time.Time {
	if !p.Contains(now) {
		return p.End()
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Progress returns the percentage of the month elapsed as of now, clamped
// to [0, 100]. Past months report 100, future months 0.
func (p Period) Progress(now time.Time) decimal.Decimal {
	current := PeriodOf(now)
	if p.After(current) {
		return decimal.Zero
	}
	if current.After(p) {
		return oneHundred
	}
	day := decimal.NewFromInt(int64(now.Day()))
	total := decimal.NewFromInt(int64(p.DaysInMonth()))
	progress := day.Div(total).Mul(oneHundred)
	if progress.GreaterThan(oneHundred) {
		return oneHundred
	}
	return progress
}
