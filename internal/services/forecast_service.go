package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/forecast"
)

// ForecastStore is the subset of storage operations forecasting needs.
type ForecastStore interface {
	ListRules(ctx context.Context, year, month int) ([]core.Rule, error)
	ListObserved(ctx context.Context, year, month int) ([]core.ObservedBalance, error)
	GetStartBalance(ctx context.Context, year, month int) (decimal.Decimal, error)
}

// ForecastService loads a month from storage and runs the projection engine
// over it.
type ForecastService struct {
	store ForecastStore
}

func NewForecastService(store ForecastStore) *ForecastService {
	return &ForecastService{store: store}
}

// monthInputs loads everything a simulation needs for one month.
func (s *ForecastService) monthInputs(ctx context.Context, year, month int) (decimal.Decimal, []core.Rule, []core.ObservedBalance, error) {
	start, err := s.store.GetStartBalance(ctx, year, month)
	if err != nil {
		return decimal.Zero, nil, nil, fmt.Errorf("load start balance: %w", err)
	}

	rules, err := s.store.ListRules(ctx, year, month)
	if err != nil {
		return decimal.Zero, nil, nil, fmt.Errorf("load rules: %w", err)
	}

	observed, err := s.store.ListObserved(ctx, year, month)
	if err != nil {
		return decimal.Zero, nil, nil, fmt.Errorf("load observed balances: %w", err)
	}

	return start, rules, observed, nil
}

// Daily returns the day-by-day projection for the month.
func (s *ForecastService) Daily(ctx context.Context, year, month int) ([]core.SimulationPoint, error) {
	start, rules, observed, err := s.monthInputs(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return forecast.Simulate(start, year, month, rules, observed), nil
}

// Weekly returns the projection collapsed into week buckets.
func (s *ForecastService) Weekly(ctx context.Context, year, month int) ([]core.WeeklyPoint, error) {
	daily, err := s.Daily(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return forecast.AggregateWeekly(daily), nil
}

// Categories returns the month's totals grouped by rule category.
func (s *ForecastService) Categories(ctx context.Context, year, month int) (core.CategoryBreakdown, error) {
	rules, err := s.store.ListRules(ctx, year, month)
	if err != nil {
		return core.CategoryBreakdown{}, fmt.Errorf("load rules: %w", err)
	}
	return forecast.Breakdown(year, month, rules), nil
}
