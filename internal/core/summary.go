package core

import "github.com/shopspring/decimal"

// CategoryAmount is a planned monthly total for one category.
type CategoryAmount struct {
	Name   string
	Kind   RuleKind
	Amount decimal.Decimal
}

// CategoryBreakdown is the per-category planned summary for a year+month.
type CategoryBreakdown struct {
	Year       int
	Month      int // 1-12
	Income     decimal.Decimal
	Expenses   decimal.Decimal // includes savings
	ByCategory []CategoryAmount
}
