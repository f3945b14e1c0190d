// Package forecast implements the balance projection engine: the day-by-day
// monthly simulation, the reality-trajectory reconciliation, and the weekly
// aggregation built on top of it. Everything in this package is a pure
// function of its arguments; storage and transport live elsewhere.
//
// This file implements the Strategy Pattern for per-rule accrual. Each
// schedule shape (once per month, weekly smoothed, weekly lump sum) has its
// own accruer that encapsulates when and how much the rule contributes.
package forecast

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

var seven = decimal.NewFromInt(7)

// Accruer is the strategy interface for evaluating one rule against a
// calendar day. AmountOn returns the unsigned magnitude the rule
// contributes on (year, month, day), or zero when it does not fire.
type Accruer interface {
	AmountOn(year, month, day int) decimal.Decimal
}

// onceAccruer fires the full amount on a fixed day of the month.
// Days beyond the month's actual length never fire; that is not an error.
type onceAccruer struct {
	day    int
	amount decimal.Decimal
}

func (a onceAccruer) AmountOn(_, _, day int) decimal.Decimal {
	if day == a.day {
		return a.amount
	}
	return decimal.Zero
}

// smoothAccruer spreads a weekly amount evenly across all seven days.
// The daily rate is derived once at construction, not per day.
type smoothAccruer struct {
	rate decimal.Decimal
}

func (a smoothAccruer) AmountOn(_, _, _ int) decimal.Decimal {
	return a.rate
}

// lumpSumAccruer posts the full weekly amount on every occurrence of a
// designated weekday within the month.
type lumpSumAccruer struct {
	weekday time.Weekday
	amount  decimal.Decimal
}

func (a lumpSumAccruer) AmountOn(year, month, day int) decimal.Decimal {
	if core.WeekdayOf(year, month, day) == a.weekday {
		return a.amount
	}
	return decimal.Zero
}

// AccruerFor returns the accruer for a rule's schedule shape.
// Returns an error for schedule combinations the engine does not know.
func AccruerFor(r core.Rule) (Accruer, error) {
	switch r.Schedule {
	case core.Once:
		return onceAccruer{day: r.DayOfMonth, amount: r.Amount}, nil
	case core.Weekly:
		switch r.Distribution {
		case core.Smooth:
			return smoothAccruer{rate: r.Amount.Div(seven)}, nil
		case core.LumpSum:
			return lumpSumAccruer{weekday: r.DayOfWeek, amount: r.Amount}, nil
		}
	}
	return nil, fmt.Errorf("unknown schedule: %s/%s", r.Schedule, r.Distribution)
}

// MonthlyTotal returns the unsigned total a rule accrues over the whole of
// (year, month): the amount itself for a firing Once rule, rate times days
// for a smoothed rule, and amount times weekday occurrences for a lump sum.
func MonthlyTotal(r core.Rule, year, month int) decimal.Decimal {
	days := core.DaysInMonth(year, month)
	switch {
	case r.Schedule == core.Once:
		if r.DayOfMonth >= 1 && r.DayOfMonth <= days {
			return r.Amount
		}
		return decimal.Zero
	case r.Distribution == core.Smooth:
		return r.Amount.Div(seven).Mul(decimal.NewFromInt(int64(days)))
	default:
		n := core.WeekdayOccurrences(year, month, r.DayOfWeek)
		return r.Amount.Mul(decimal.NewFromInt(int64(n)))
	}
}
