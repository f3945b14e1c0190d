package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

type dailyPointResponse struct {
	Day                int     `json:"day"`
	Balance            string  `json:"balance"`
	ActualBalance      *string `json:"actual_balance"`
	DailyDelta         string  `json:"daily_delta"`
	CumulativeIncome   string  `json:"cumulative_income"`
	CumulativeExpenses string  `json:"cumulative_expenses"`
}

type dailyForecastResponse struct {
	Year  int                  `json:"year"`
	Month int                  `json:"month"`
	Days  []dailyPointResponse `json:"days"`
}

type weeklyPointResponse struct {
	Label         string  `json:"label"`
	Balance       string  `json:"balance"`
	ActualBalance *string `json:"actual_balance"`
	Income        string  `json:"income"`
	Expenses      string  `json:"expenses"`
}

type weeklyForecastResponse struct {
	Year  int                   `json:"year"`
	Month int                   `json:"month"`
	Weeks []weeklyPointResponse `json:"weeks"`
}

type categoryAmountResponse struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Amount string `json:"amount"`
}

type categoriesResponse struct {
	Year       int                      `json:"year"`
	Month      int                      `json:"month"`
	Income     string                   `json:"income"`
	Expenses   string                   `json:"expenses"`
	ByCategory []categoryAmountResponse `json:"by_category"`
}

func (s *Server) handleForecastDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	points, err := s.getDaily(r, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Daily forecast error", "error", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "forecast failed")
		return
	}

	resp := dailyForecastResponse{Year: year, Month: month, Days: make([]dailyPointResponse, 0, len(points))}
	for _, p := range points {
		resp.Days = append(resp.Days, dailyPointResponse{
			Day:                p.Day,
			Balance:            p.Balance.String(),
			ActualBalance:      decimalPtr(p.ActualBalance),
			DailyDelta:         p.DailyDelta.String(),
			CumulativeIncome:   p.CumulativeIncome.String(),
			CumulativeExpenses: p.CumulativeExpenses.String(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForecastWeekly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	key := s.cacheKey(year, month)
	weeks, found := s.weeklyCache.Get(key)
	if !found {
		weeks, err = s.forecasts.Weekly(r.Context(), year, month)
		if err != nil {
			slog.ErrorContext(r.Context(), "Weekly forecast error", "error", err, "year", year, "month", month)
			writeError(w, http.StatusInternalServerError, "forecast failed")
			return
		}
		s.weeklyCache.Set(key, weeks)
	} else {
		slog.DebugContext(r.Context(), "Weekly forecast cache hit", "year", year, "month", month)
	}

	resp := weeklyForecastResponse{Year: year, Month: month, Weeks: make([]weeklyPointResponse, 0, len(weeks))}
	for _, wp := range weeks {
		resp.Weeks = append(resp.Weeks, weeklyPointResponse{
			Label:         wp.Label,
			Balance:       wp.Balance.String(),
			ActualBalance: decimalPtr(wp.ActualBalance),
			Income:        wp.Income.String(),
			Expenses:      wp.Expenses.String(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForecastCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}

	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	breakdown, err := s.forecasts.Categories(r.Context(), year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Category breakdown error", "error", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "breakdown failed")
		return
	}

	resp := categoriesResponse{
		Year:       breakdown.Year,
		Month:      breakdown.Month,
		Income:     breakdown.Income.String(),
		Expenses:   breakdown.Expenses.String(),
		ByCategory: make([]categoryAmountResponse, 0, len(breakdown.ByCategory)),
	}
	for _, c := range breakdown.ByCategory {
		resp.ByCategory = append(resp.ByCategory, categoryAmountResponse{
			Name:   c.Name,
			Kind:   string(c.Kind),
			Amount: c.Amount.String(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForecastExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export not configured")
		return
	}

	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	points, err := s.getDaily(r, year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "Export forecast error", "error", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "forecast failed")
		return
	}

	ref, err := s.exporter.ExportMonth(r.Context(), year, month, points)
	if err != nil {
		slog.ErrorContext(r.Context(), "Export error", "error", err, "year", year, "month", month)
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"ref": ref})
}

// getDaily returns the month's daily forecast, serving from cache when fresh.
func (s *Server) getDaily(r *http.Request, year, month int) ([]core.SimulationPoint, error) {
	key := s.cacheKey(year, month)
	if points, found := s.dailyCache.Get(key); found {
		slog.DebugContext(r.Context(), "Daily forecast cache hit", "year", year, "month", month)
		return points, nil
	}

	points, err := s.forecasts.Daily(r.Context(), year, month)
	if err != nil {
		return nil, err
	}
	s.dailyCache.Set(key, points)
	return points, nil
}

func (s *Server) cacheKey(year, month int) string {
	return strconv.Itoa(year) + "-" + strconv.Itoa(month)
}

// invalidateForecast drops cached projections after any write to the month.
func (s *Server) invalidateForecast(year, month int) {
	key := s.cacheKey(year, month)
	s.dailyCache.Delete(key)
	s.weeklyCache.Delete(key)
}

func decimalPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
