package forecast

import (
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// compiledRule pairs a rule with its accrual strategy so per-rule state
// (the smooth daily rate) is derived once per simulation, not per day.
type compiledRule struct {
	kind    core.RuleKind
	accruer Accruer
}

func compile(rules []core.Rule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		a, err := AccruerFor(r)
		if err != nil {
			// Unknown schedule shapes never fire. Validation at the
			// boundary keeps them out; the engine stays total.
			continue
		}
		compiled = append(compiled, compiledRule{kind: r.Kind, accruer: a})
	}
	return compiled
}

// Simulate projects the balance day by day across (year, month), starting
// from initial. It returns exactly DaysInMonth(year, month) points in day
// order, for any well-typed input.
//
// The planned trajectory accumulates every rule's signed contribution per
// day. The reality trajectory overlays observed balances: an observed day
// carries its observed value verbatim, days after the latest observation
// extend it using the same planned daily deltas, and days before it stay
// unset. Duplicate observations for one day resolve to the last one given.
func Simulate(initial decimal.Decimal, year, month int, rules []core.Rule, observed []core.ObservedBalance) []core.SimulationPoint {
	days := core.DaysInMonth(year, month)
	compiled := compile(rules)

	observedByDay := make(map[int]decimal.Decimal, len(observed))
	anchorDay := 0
	for _, o := range observed {
		if o.Day < 1 || o.Day > days {
			continue
		}
		observedByDay[o.Day] = o.Value
		if o.Day > anchorDay {
			anchorDay = o.Day
		}
	}

	// deltas[d] keeps the raw (unrounded) planned delta of day d so the
	// reality projection reuses identical firing results without walking
	// the rules again from the anchor for every later day.
	deltas := make([]decimal.Decimal, days+1)
	points := make([]core.SimulationPoint, days)

	balance := initial
	income := decimal.Zero
	expenses := decimal.Zero

	for d := 1; d <= days; d++ {
		delta := decimal.Zero
		for _, cr := range compiled {
			amt := cr.accruer.AmountOn(year, month, d)
			if amt.IsZero() {
				continue
			}
			if cr.kind.Outflow() {
				delta = delta.Sub(amt)
				expenses = expenses.Add(amt)
			} else {
				delta = delta.Add(amt)
				income = income.Add(amt)
			}
		}
		deltas[d] = delta
		balance = balance.Add(delta)

		points[d-1] = core.SimulationPoint{
			Day:                d,
			Balance:            core.RoundCents(balance),
			DailyDelta:         core.RoundCents(delta),
			CumulativeIncome:   core.RoundCents(income),
			CumulativeExpenses: core.RoundCents(expenses),
		}
	}

	if anchorDay == 0 {
		return points
	}

	// Reality trajectory. Running state carries raw values; only the
	// stored point is rounded, so the projection never accumulates
	// rounding drift.
	running := observedByDay[anchorDay]
	for i := range points {
		d := points[i].Day
		if v, ok := observedByDay[d]; ok {
			actual := core.RoundCents(v)
			points[i].ActualBalance = &actual
			continue
		}
		if d > anchorDay {
			running = running.Add(deltas[d])
			actual := core.RoundCents(running)
			points[i].ActualBalance = &actual
		}
	}

	return points
}

// Breakdown computes the planned per-category monthly totals for
// (year, month). Income totals and outflow totals (expenses plus savings)
// accumulate separately; category rows keep their rule kind so callers can
// report savings apart from expenses.
func Breakdown(year, month int, rules []core.Rule) core.CategoryBreakdown {
	bd := core.CategoryBreakdown{Year: year, Month: month, Income: decimal.Zero, Expenses: decimal.Zero}

	type key struct {
		name string
		kind core.RuleKind
	}
	totals := make(map[key]decimal.Decimal)
	order := make([]key, 0, len(rules))

	for _, r := range rules {
		total := MonthlyTotal(r, year, month)
		if total.IsZero() {
			continue
		}
		if r.Kind.Outflow() {
			bd.Expenses = bd.Expenses.Add(total)
		} else {
			bd.Income = bd.Income.Add(total)
		}
		k := key{name: r.Category, kind: r.Kind}
		if _, ok := totals[k]; !ok {
			order = append(order, k)
		}
		totals[k] = totals[k].Add(total)
	}

	bd.Income = core.RoundCents(bd.Income)
	bd.Expenses = core.RoundCents(bd.Expenses)
	for _, k := range order {
		bd.ByCategory = append(bd.ByCategory, core.CategoryAmount{
			Name:   k.name,
			Kind:   k.kind,
			Amount: core.RoundCents(totals[k]),
		})
	}
	return bd
}
