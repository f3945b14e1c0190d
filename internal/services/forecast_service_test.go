package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

type fakeForecastStore struct {
	start    decimal.Decimal
	rules    []core.Rule
	observed []core.ObservedBalance
}

func (f *fakeForecastStore) ListRules(context.Context, int, int) ([]core.Rule, error) {
	return f.rules, nil
}

func (f *fakeForecastStore) ListObserved(context.Context, int, int) ([]core.ObservedBalance, error) {
	return f.observed, nil
}

func (f *fakeForecastStore) GetStartBalance(context.Context, int, int) (decimal.Decimal, error) {
	return f.start, nil
}

func TestForecastService_Daily(t *testing.T) {
	store := &fakeForecastStore{
		start: decimal.RequireFromString("1000"),
		rules: []core.Rule{ruleFixture("rent", "300")},
		observed: []core.ObservedBalance{
			{Day: 10, Value: decimal.RequireFromString("650")},
		},
	}
	service := NewForecastService(store)

	points, err := service.Daily(context.Background(), 2025, 9)
	if err != nil {
		t.Fatalf("Daily() error = %v", err)
	}
	if len(points) != 30 {
		t.Fatalf("Daily() returned %d points, want 30", len(points))
	}
	if !points[4].Balance.Equal(decimal.RequireFromString("700")) {
		t.Errorf("day 5 balance = %v, want 700 after the expense fires", points[4].Balance)
	}
	if points[9].ActualBalance == nil || !points[9].ActualBalance.Equal(decimal.RequireFromString("650")) {
		t.Errorf("day 10 actual = %v, want 650", points[9].ActualBalance)
	}
}

func TestForecastService_Weekly(t *testing.T) {
	store := &fakeForecastStore{
		start: decimal.RequireFromString("1000"),
		rules: []core.Rule{ruleFixture("rent", "300")},
	}
	service := NewForecastService(store)

	weeks, err := service.Weekly(context.Background(), 2025, 9)
	if err != nil {
		t.Fatalf("Weekly() error = %v", err)
	}
	if len(weeks) != 5 {
		t.Fatalf("Weekly() returned %d weeks, want 5 for a 30 day month", len(weeks))
	}
	if !weeks[0].Expenses.Equal(decimal.RequireFromString("300")) {
		t.Errorf("week 1 expenses = %v, want 300", weeks[0].Expenses)
	}
}

func TestForecastService_Categories(t *testing.T) {
	store := &fakeForecastStore{
		rules: []core.Rule{
			ruleFixture("rent", "850"),
			{
				ID:         "salary",
				Amount:     decimal.RequireFromString("2000"),
				Kind:       core.Income,
				Schedule:   core.Once,
				DayOfMonth: 27,
				Category:   "work",
			},
		},
	}
	service := NewForecastService(store)

	breakdown, err := service.Categories(context.Background(), 2025, 9)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if !breakdown.Income.Equal(decimal.RequireFromString("2000")) {
		t.Errorf("income = %v, want 2000", breakdown.Income)
	}
	if !breakdown.Expenses.Equal(decimal.RequireFromString("850")) {
		t.Errorf("expenses = %v, want 850", breakdown.Expenses)
	}
	if len(breakdown.ByCategory) != 2 {
		t.Errorf("ByCategory has %d entries, want 2", len(breakdown.ByCategory))
	}
}
