package sheets

import (
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		year     int
		expected string
	}{
		{"plain base", "Forecast", 2025, "2025 Forecast"},
		{"already prefixed", "2024 Forecast", 2025, "2024 Forecast"},
		{"short base", "F", 2025, "2025 F"},
		{"empty base", "", 2025, ""},
		{"numeric but not a year", "1234", 2025, "2025 1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := yearPrefixedName(tt.base, tt.year); got != tt.expected {
				t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.expected)
			}
		})
	}
}

func TestForecastRows(t *testing.T) {
	actual := decimal.RequireFromString("950.25")
	points := []core.SimulationPoint{
		{Day: 1, Balance: decimal.RequireFromString("1000"), DailyDelta: decimal.Zero},
		{Day: 2, Balance: decimal.RequireFromString("950.25"), ActualBalance: &actual, DailyDelta: decimal.RequireFromString("-49.75")},
	}

	rows := ForecastRows(2025, 9, points)

	if len(rows) != 3 {
		t.Fatalf("ForecastRows() returned %d rows, want 3 (header + 2 days)", len(rows))
	}
	if rows[0][3] != "Projected" {
		t.Errorf("header column 4 = %v, want Projected", rows[0][3])
	}
	if rows[1][4] != "" {
		t.Errorf("day 1 actual = %v, want blank without an observation", rows[1][4])
	}
	if rows[2][4] != "950.25" {
		t.Errorf("day 2 actual = %v, want 950.25", rows[2][4])
	}
	if rows[2][0] != 2025 || rows[2][1] != 9 || rows[2][2] != 2 {
		t.Errorf("day 2 key = %v/%v/%v, want 2025/9/2", rows[2][0], rows[2][1], rows[2][2])
	}
}
