package forecast

import (
	"strconv"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// AggregateWeekly collapses daily simulation points into consecutive
// non-overlapping 7-day chunks starting at day 1. The final chunk holds the
// remainder when the month does not divide evenly; it is never dropped or
// padded. Balance and actual balance are the chunk's last point's values,
// income and expenses are the unsigned sums of the chunk's positive and
// negative daily deltas.
func AggregateWeekly(daily []core.SimulationPoint) []core.WeeklyPoint {
	weeks := make([]core.WeeklyPoint, 0, (len(daily)+6)/7)

	for start := 0; start < len(daily); start += 7 {
		end := start + 7
		if end > len(daily) {
			end = len(daily)
		}
		chunk := daily[start:end]

		income := decimal.Zero
		expenses := decimal.Zero
		for _, p := range chunk {
			switch {
			case p.DailyDelta.IsPositive():
				income = income.Add(p.DailyDelta)
			case p.DailyDelta.IsNegative():
				expenses = expenses.Add(p.DailyDelta.Abs())
			}
		}

		last := chunk[len(chunk)-1]
		weeks = append(weeks, core.WeeklyPoint{
			Label:         "Week " + strconv.Itoa(len(weeks)+1),
			Balance:       last.Balance,
			ActualBalance: last.ActualBalance,
			Income:        core.RoundCents(income),
			Expenses:      core.RoundCents(expenses),
		})
	}

	return weeks
}
