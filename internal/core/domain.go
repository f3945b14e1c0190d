package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  RuleKind = "income"
	Expense RuleKind = "expense"
	Saving  RuleKind = "saving"
)

const (
	Once   ScheduleType = "once"
	Weekly ScheduleType = "weekly"
)

const (
	Smooth  Distribution = "smooth"
	LumpSum Distribution = "lump_sum"
)

type (
	RuleKind     string
	ScheduleType string
	Distribution string

	// Rule is a planned cash movement template. Amount is always a
	// non-negative magnitude; the sign is derived from Kind at accrual
	// time and never stored.
	Rule struct {
		ID           string
		Amount       decimal.Decimal
		Kind         RuleKind
		Schedule     ScheduleType
		DayOfMonth   int          // Once: 1..31
		Distribution Distribution // Weekly only
		DayOfWeek    time.Weekday // Weekly + LumpSum only
		Category     string
	}

	// ObservedBalance is a user-asserted actual balance on a calendar day
	// of the target month. One entry per day is the caller's contract.
	ObservedBalance struct {
		Day   int
		Value decimal.Decimal
	}

	// SimulationPoint is one calendar day of a month forecast. Values are
	// rounded to cents. ActualBalance is nil where no observation or
	// projection from an observation applies.
	SimulationPoint struct {
		Day                int
		Balance            decimal.Decimal
		ActualBalance      *decimal.Decimal
		DailyDelta         decimal.Decimal
		CumulativeIncome   decimal.Decimal
		CumulativeExpenses decimal.Decimal
	}

	// WeeklyPoint collapses up to seven consecutive daily points. Balances
	// are end-of-chunk snapshots, income/expenses are unsigned sums of the
	// chunk's positive/negative daily deltas.
	WeeklyPoint struct {
		Label         string
		Balance       decimal.Decimal
		ActualBalance *decimal.Decimal
		Income        decimal.Decimal
		Expenses      decimal.Decimal
	}
)

var (
	ErrEmptyID             = errors.New("empty rule id")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidKind         = errors.New("invalid rule kind")
	ErrInvalidSchedule     = errors.New("invalid schedule type")
	ErrInvalidDayOfMonth   = errors.New("day of month out of range")
	ErrInvalidDistribution = errors.New("invalid distribution")
	ErrInvalidDayOfWeek    = errors.New("day of week out of range")
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrEmptyCategory       = errors.New("empty category")
)

func (k RuleKind) IsValid() bool {
	switch k {
	case Income, Expense, Saving:
		return true
	}
	return false
}

// Outflow reports whether the kind reduces the balance. Saving behaves
// like an outflow for balance purposes but is categorized separately.
func (k RuleKind) Outflow() bool {
	return k == Expense || k == Saving
}

func (r Rule) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyID
	}
	if r.Amount.IsNegative() || r.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	switch r.Schedule {
	case Once:
		// Days past the month's actual length simply never fire, but
		// anything outside 1..31 can never fire at all.
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return ErrInvalidDayOfMonth
		}
	case Weekly:
		switch r.Distribution {
		case Smooth:
		case LumpSum:
			if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
				return ErrInvalidDayOfWeek
			}
		default:
			return ErrInvalidDistribution
		}
	default:
		return ErrInvalidSchedule
	}
	return nil
}

func (o ObservedBalance) Validate(daysInMonth int) error {
	if o.Day < 1 || o.Day > daysInMonth {
		return ErrInvalidDay
	}
	return nil
}

// DaysInMonth returns the number of calendar days in (year, month),
// accounting for leap years.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WeekdayOf returns the weekday of the calendar date (year, month, day).
func WeekdayOf(year, month, day int) time.Weekday {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Weekday()
}

// WeekdayOccurrences counts how many times weekday w occurs in (year, month).
func WeekdayOccurrences(year, month int, w time.Weekday) int {
	count := 0
	for d := 1; d <= DaysInMonth(year, month); d++ {
		if WeekdayOf(year, month, d) == w {
			count++
		}
	}
	return count
}

// ValidMonth reports whether month is a calendar month number.
func ValidMonth(month int) bool {
	return month >= 1 && month <= 12
}
