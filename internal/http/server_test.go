package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/services"
)

// memStore is an in-memory month store backing the handler tests.
type memStore struct {
	rules    map[string]map[string]core.Rule
	ruleSeq  map[string][]string
	observed map[string]map[int]decimal.Decimal
	starts   map[string]decimal.Decimal
}

func newMemStore() *memStore {
	return &memStore{
		rules:    make(map[string]map[string]core.Rule),
		ruleSeq:  make(map[string][]string),
		observed: make(map[string]map[int]decimal.Decimal),
		starts:   make(map[string]decimal.Decimal),
	}
}

func monthKey(year, month int) string { return fmt.Sprintf("%d-%d", year, month) }

func (m *memStore) ListRules(_ context.Context, year, month int) ([]core.Rule, error) {
	key := monthKey(year, month)
	out := make([]core.Rule, 0, len(m.rules[key]))
	for _, id := range m.ruleSeq[key] {
		if r, ok := m.rules[key][id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpsertRule(_ context.Context, year, month int, rule core.Rule) error {
	key := monthKey(year, month)
	if m.rules[key] == nil {
		m.rules[key] = make(map[string]core.Rule)
	}
	if _, ok := m.rules[key][rule.ID]; !ok {
		m.ruleSeq[key] = append(m.ruleSeq[key], rule.ID)
	}
	m.rules[key][rule.ID] = rule
	return nil
}

func (m *memStore) UpdateRuleIfExists(_ context.Context, year, month int, rule core.Rule) (bool, error) {
	key := monthKey(year, month)
	if _, ok := m.rules[key][rule.ID]; !ok {
		return false, nil
	}
	m.rules[key][rule.ID] = rule
	return true, nil
}

func (m *memStore) DeleteRule(_ context.Context, year, month int, ruleID string) (bool, error) {
	key := monthKey(year, month)
	if _, ok := m.rules[key][ruleID]; !ok {
		return false, nil
	}
	delete(m.rules[key], ruleID)
	return true, nil
}

func (m *memStore) ListObserved(_ context.Context, year, month int) ([]core.ObservedBalance, error) {
	key := monthKey(year, month)
	out := make([]core.ObservedBalance, 0, len(m.observed[key]))
	for day := 1; day <= 31; day++ {
		if v, ok := m.observed[key][day]; ok {
			out = append(out, core.ObservedBalance{Day: day, Value: v})
		}
	}
	return out, nil
}

func (m *memStore) UpsertObserved(_ context.Context, year, month int, o core.ObservedBalance) error {
	key := monthKey(year, month)
	if m.observed[key] == nil {
		m.observed[key] = make(map[int]decimal.Decimal)
	}
	m.observed[key][o.Day] = o.Value
	return nil
}

func (m *memStore) DeleteObserved(_ context.Context, year, month, day int) (bool, error) {
	key := monthKey(year, month)
	if _, ok := m.observed[key][day]; !ok {
		return false, nil
	}
	delete(m.observed[key], day)
	return true, nil
}

func (m *memStore) GetStartBalance(_ context.Context, year, month int) (decimal.Decimal, error) {
	return m.starts[monthKey(year, month)], nil
}

func (m *memStore) SetStartBalance(_ context.Context, year, month int, balance decimal.Decimal) error {
	m.starts[monthKey(year, month)] = balance
	return nil
}

type fakeExporter struct{ ref string }

func (f fakeExporter) ExportMonth(context.Context, int, int, []core.SimulationPoint) (string, error) {
	return f.ref, nil
}

func newTestServer(store *memStore, exporter Exporter) *Server {
	forecasts := services.NewForecastService(store)
	rules := services.NewRuleService(store, nil)
	return NewServer(":0", forecasts, rules, store, exporter, Options{})
}

func doJSON(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(newMemStore(), nil)
	defer srv.Shutdown(context.Background())

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rr.Code)
		}
	}
}

func TestForecastDaily(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	defer srv.Shutdown(context.Background())

	_ = store.SetStartBalance(context.Background(), 2025, 9, decimal.RequireFromString("1000"))

	t.Run("missing params", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodGet, "/api/forecast", "")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rr.Code)
		}
	})

	t.Run("bad month", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodGet, "/api/forecast?year=2025&month=13", "")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", rr.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodDelete, "/api/forecast?year=2025&month=9", "")
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want 405", rr.Code)
		}
	})

	t.Run("full month", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodGet, "/api/forecast?year=2025&month=9", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
		var resp dailyForecastResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(resp.Days) != 30 {
			t.Fatalf("days = %d, want 30", len(resp.Days))
		}
		if resp.Days[0].Balance != "1000" {
			t.Errorf("day 1 balance = %s, want 1000", resp.Days[0].Balance)
		}
		if resp.Days[0].ActualBalance != nil {
			t.Error("day 1 actual should be null without observations")
		}
	})
}

func TestRuleLifecycle(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	defer srv.Shutdown(context.Background())

	ruleBody := `{"id":"rent","amount":"850","kind":"expense","schedule":"once","day_of_month":3,"category":"housing"}`

	rr := doJSON(t, srv, http.MethodPost, "/api/rules?year=2025&month=9", ruleBody)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Second save of the same id reports an update
	rr = doJSON(t, srv, http.MethodPost, "/api/rules?year=2025&month=9", ruleBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", rr.Code)
	}

	// In-process propagation reached future months
	if _, ok := store.rules[monthKey(2026, 3)]["rent"]; !ok {
		t.Error("rule should have propagated to future months")
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/rules?year=2025&month=9", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"rent"`) {
		t.Errorf("list body missing rule: %s", rr.Body.String())
	}

	// Forecast reflects the rule
	rr = doJSON(t, srv, http.MethodGet, "/api/forecast?year=2025&month=9", "")
	var forecast dailyForecastResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &forecast); err != nil {
		t.Fatalf("decode forecast: %v", err)
	}
	if forecast.Days[29].Balance != "-850" {
		t.Errorf("month end balance = %s, want -850", forecast.Days[29].Balance)
	}

	rr = doJSON(t, srv, http.MethodDelete, "/api/rules?year=2025&month=9&id=rent", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodDelete, "/api/rules?year=2025&month=9&id=rent", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rr.Code)
	}
}

func TestRuleValidationErrors(t *testing.T) {
	srv := newTestServer(newMemStore(), nil)
	defer srv.Shutdown(context.Background())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"bad amount", `{"id":"x","amount":"abc","kind":"expense","schedule":"once","day_of_month":1,"category":"misc"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"id":"x","amount":"-5","kind":"expense","schedule":"once","day_of_month":1,"category":"misc"}`, http.StatusUnprocessableEntity},
		{"bad kind", `{"id":"x","amount":"5","kind":"loan","schedule":"once","day_of_month":1,"category":"misc"}`, http.StatusUnprocessableEntity},
		{"day out of range", `{"id":"x","amount":"5","kind":"expense","schedule":"once","day_of_month":32,"category":"misc"}`, http.StatusUnprocessableEntity},
		{"weekly without distribution", `{"id":"x","amount":"5","kind":"expense","schedule":"weekly","category":"misc"}`, http.StatusUnprocessableEntity},
		{"missing category", `{"id":"x","amount":"5","kind":"expense","schedule":"once","day_of_month":1}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, srv, http.MethodPost, "/api/rules?year=2025&month=9", tt.body)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestBalanceLifecycle(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	defer srv.Shutdown(context.Background())

	_ = store.SetStartBalance(context.Background(), 2025, 9, decimal.RequireFromString("1000"))

	rr := doJSON(t, srv, http.MethodPut, "/api/balances?year=2025&month=9", `{"day":10,"value":"-42.50"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Write invalidates the cached forecast and the observation shows up
	rr = doJSON(t, srv, http.MethodGet, "/api/forecast?year=2025&month=9", "")
	var forecast dailyForecastResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &forecast); err != nil {
		t.Fatalf("decode forecast: %v", err)
	}
	if forecast.Days[9].ActualBalance == nil || *forecast.Days[9].ActualBalance != "-42.5" {
		t.Errorf("day 10 actual = %v, want -42.5", forecast.Days[9].ActualBalance)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/balances?year=2025&month=9", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"day":10`) {
		t.Fatalf("list status = %d, body = %s", rr.Code, rr.Body.String())
	}

	t.Run("day out of range", func(t *testing.T) {
		rr := doJSON(t, srv, http.MethodPut, "/api/balances?year=2025&month=9", `{"day":31,"value":"1"}`)
		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422 for day 31 in September", rr.Code)
		}
	})

	rr = doJSON(t, srv, http.MethodDelete, "/api/balances?year=2025&month=9&day=10", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodDelete, "/api/balances?year=2025&month=9&day=10", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rr.Code)
	}
}

func TestStartBalance(t *testing.T) {
	srv := newTestServer(newMemStore(), nil)
	defer srv.Shutdown(context.Background())

	rr := doJSON(t, srv, http.MethodPut, "/api/balances/start?year=2025&month=9", `{"value":"1234.56"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/balances/start?year=2025&month=9", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "1234.56") {
		t.Fatalf("get status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodPut, "/api/balances/start?year=2025&month=9", `{"value":"abc"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad value status = %d, want 422", rr.Code)
	}
}

func TestForecastWeekly(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	defer srv.Shutdown(context.Background())

	_ = store.SetStartBalance(context.Background(), 2025, 1, decimal.RequireFromString("500"))

	rr := doJSON(t, srv, http.MethodGet, "/api/forecast/weekly?year=2025&month=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp weeklyForecastResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Weeks) != 5 {
		t.Fatalf("weeks = %d, want 5 for a 31 day month", len(resp.Weeks))
	}
	if resp.Weeks[0].Label != "Week 1" {
		t.Errorf("label = %s, want Week 1", resp.Weeks[0].Label)
	}
}

func TestForecastCategories(t *testing.T) {
	store := newMemStore()
	srv := newTestServer(store, nil)
	defer srv.Shutdown(context.Background())

	body := `{"id":"salary","amount":"2000","kind":"income","schedule":"once","day_of_month":27,"category":"work"}`
	if rr := doJSON(t, srv, http.MethodPost, "/api/rules?year=2025&month=9", body); rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}

	rr := doJSON(t, srv, http.MethodGet, "/api/forecast/categories?year=2025&month=9", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp categoriesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Income != "2000" {
		t.Errorf("income = %s, want 2000", resp.Income)
	}
	if len(resp.ByCategory) != 1 || resp.ByCategory[0].Name != "work" {
		t.Errorf("by_category = %+v, want single work entry", resp.ByCategory)
	}
}

func TestForecastExport(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(newMemStore(), nil)
		defer srv.Shutdown(context.Background())

		rr := doJSON(t, srv, http.MethodPost, "/api/forecast/export?year=2025&month=9", "")
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("status = %d, want 501", rr.Code)
		}
	})

	t.Run("configured", func(t *testing.T) {
		srv := newTestServer(newMemStore(), fakeExporter{ref: "2025 Forecast!A1:F31"})
		defer srv.Shutdown(context.Background())

		rr := doJSON(t, srv, http.MethodPost, "/api/forecast/export?year=2025&month=9", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
		if !strings.Contains(rr.Body.String(), "2025 Forecast") {
			t.Errorf("body missing export ref: %s", rr.Body.String())
		}
	})
}
