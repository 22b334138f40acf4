package settlement

import (
	"fmt"
	"time"
)

// TierKind names one of the four aggregation tiers above the
// per-transaction level.
type TierKind string

const (
	TierDaily   TierKind = "DAILY"
	TierWeekly  TierKind = "WEEKLY"
	TierMonthly TierKind = "MONTHLY"
	TierYearly  TierKind = "YEARLY"
)

// IsValid checks if the kind is one of the supported values.
func (k TierKind) IsValid() bool {
	switch k {
	case TierDaily, TierWeekly, TierMonthly, TierYearly:
		return true
	default:
		return false
	}
}

// letter returns the single-letter code used in settlement numbers.
func (k TierKind) letter() string {
	switch k {
	case TierDaily:
		return "D"
	case TierWeekly:
		return "W"
	case TierMonthly:
		return "M"
	default:
		return "Y"
	}
}

// PeriodKey identifies the period of a tier aggregate. All fields are
// derived from the brand-local transaction date, never from the UTC
// timestamp: a transaction near midnight UTC can belong to a different
// local week.
type PeriodKey struct {
	Kind TierKind

	// Date is the local calendar date for daily periods.
	Date time.Time

	// Year and Month identify weekly/monthly/yearly periods. For weekly
	// periods they are the year and month of the week's Monday.
	Year  int
	Month time.Month

	// WeekOfMonth counts Monday-based weeks within the month of the
	// week's Monday, starting at 1.
	WeekOfMonth int
	WeekStart   time.Time
	WeekEnd     time.Time
}

// PeriodFor builds the period key of the given kind containing localDate.
func PeriodFor(kind TierKind, localDate time.Time) (PeriodKey, error) {
	if localDate.IsZero() {
		return PeriodKey{}, ErrInvalidPeriod
	}
	day := truncateToDay(localDate)

	switch kind {
	case TierDaily:
		return PeriodKey{Kind: TierDaily, Date: day}, nil
	case TierWeekly:
		weekStart := mondayOf(day)
		weekEnd := weekStart.AddDate(0, 0, 6)
		return PeriodKey{
			Kind:        TierWeekly,
			Year:        weekStart.Year(),
			Month:       weekStart.Month(),
			WeekOfMonth: (weekStart.Day()-1)/7 + 1,
			WeekStart:   weekStart,
			WeekEnd:     weekEnd,
		}, nil
	case TierMonthly:
		return PeriodKey{Kind: TierMonthly, Year: day.Year(), Month: day.Month()}, nil
	case TierYearly:
		return PeriodKey{Kind: TierYearly, Year: day.Year()}, nil
	default:
		return PeriodKey{}, ErrInvalidTierKind
	}
}

// Key returns the storage-friendly unique key for the period.
func (p PeriodKey) Key() string {
	switch p.Kind {
	case TierDaily:
		return p.Date.Format("20060102")
	case TierWeekly:
		return fmt.Sprintf("%04d%02dW%d", p.Year, int(p.Month), p.WeekOfMonth)
	case TierMonthly:
		return fmt.Sprintf("%04d%02d", p.Year, int(p.Month))
	case TierYearly:
		return fmt.Sprintf("%04d", p.Year)
	default:
		return ""
	}
}

// Start returns the inclusive local start of the period.
func (p PeriodKey) Start() time.Time {
	switch p.Kind {
	case TierDaily:
		return p.Date
	case TierWeekly:
		return p.WeekStart
	case TierMonthly:
		return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(p.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}

// End returns the exclusive local end of the period.
func (p PeriodKey) End() time.Time {
	switch p.Kind {
	case TierDaily:
		return p.Date.AddDate(0, 0, 1)
	case TierWeekly:
		return p.WeekStart.AddDate(0, 0, 7)
	case TierMonthly:
		return p.Start().AddDate(0, 1, 0)
	default:
		return p.Start().AddDate(1, 0, 0)
	}
}

// Validate checks structural consistency of the key.
func (p PeriodKey) Validate() error {
	if !p.Kind.IsValid() {
		return ErrInvalidTierKind
	}
	switch p.Kind {
	case TierDaily:
		if p.Date.IsZero() {
			return ErrInvalidPeriod
		}
	case TierWeekly:
		if p.Year == 0 || p.Month == 0 || p.WeekOfMonth == 0 || p.WeekStart.IsZero() || p.WeekEnd.IsZero() {
			return ErrInvalidPeriod
		}
	case TierMonthly:
		if p.Year == 0 || p.Month == 0 {
			return ErrInvalidPeriod
		}
	case TierYearly:
		if p.Year == 0 {
			return ErrInvalidPeriod
		}
	}
	return nil
}

// mondayOf returns the Monday of the week containing day.
func mondayOf(day time.Time) time.Time {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// truncateToDay strips the time of day and the zone. Period boundaries
// are naive calendar dates rendered in UTC so that daily, weekly,
// monthly and yearly starts compare consistently.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
