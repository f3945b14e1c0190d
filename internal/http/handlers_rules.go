package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
	"bilancio/internal/services"
)

type ruleRequest struct {
	ID           string `json:"id"`
	Amount       string `json:"amount"`
	Kind         string `json:"kind"`
	Schedule     string `json:"schedule"`
	DayOfMonth   int    `json:"day_of_month"`
	Distribution string `json:"distribution"`
	DayOfWeek    int    `json:"day_of_week"`
	Category     string `json:"category"`
}

type ruleResponse struct {
	ID           string `json:"id"`
	Amount       string `json:"amount"`
	Kind         string `json:"kind"`
	Schedule     string `json:"schedule"`
	DayOfMonth   int    `json:"day_of_month,omitempty"`
	Distribution string `json:"distribution,omitempty"`
	DayOfWeek    int    `json:"day_of_week,omitempty"`
	Category     string `json:"category"`
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListRules(w, r)
	case http.MethodPost:
		s.handleSaveRule(w, r)
	case http.MethodDelete:
		s.handleDeleteRule(w, r)
	default:
		methodNotAllowed(w, "GET, POST, DELETE")
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rules, err := s.store.ListRules(r.Context(), year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "List rules error", "error", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "list rules failed")
		return
	}

	resp := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, ruleResponse{
			ID:           rule.ID,
			Amount:       rule.Amount.String(),
			Kind:         string(rule.Kind),
			Schedule:     string(rule.Schedule),
			DayOfMonth:   rule.DayOfMonth,
			Distribution: string(rule.Distribution),
			DayOfWeek:    int(rule.DayOfWeek),
			Category:     rule.Category,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "rules": resp})
}

func (s *Server) handleSaveRule(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.ErrorContext(r.Context(), "Decode rule error", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	rule := core.Rule{
		ID:           sanitizeInput(req.ID),
		Amount:       amount,
		Kind:         core.RuleKind(strings.TrimSpace(req.Kind)),
		Schedule:     core.ScheduleType(strings.TrimSpace(req.Schedule)),
		DayOfMonth:   req.DayOfMonth,
		Distribution: core.Distribution(strings.TrimSpace(req.Distribution)),
		DayOfWeek:    time.Weekday(req.DayOfWeek),
		Category:     sanitizeInput(req.Category),
	}
	if err := rule.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	existed, err := s.rules.SaveRule(r.Context(), year, month, rule)
	if err != nil {
		slog.ErrorContext(r.Context(), "Save rule error", "error", err, "rule_id", rule.ID, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "save rule failed")
		return
	}

	s.invalidateRuleMonths(year, month)

	op := applog.OpCreate
	status := http.StatusCreated
	if existed {
		op = applog.OpUpdate
		status = http.StatusOK
	}
	s.logs.LogRuleChange(r.Context(), op, year, month, rule.ID)

	writeJSON(w, status, map[string]any{"id": rule.ID, "existed": existed})
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ruleID := sanitizeInput(r.URL.Query().Get("id"))
	if ruleID == "" {
		writeError(w, http.StatusUnprocessableEntity, "id query parameter is required")
		return
	}

	deleted, err := s.rules.DeleteRule(r.Context(), year, month, ruleID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Delete rule error", "error", err, "rule_id", ruleID, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "delete rule failed")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}

	s.invalidateRuleMonths(year, month)
	s.logs.LogRuleChange(r.Context(), applog.OpDelete, year, month, ruleID)

	writeJSON(w, http.StatusOK, map[string]any{"id": ruleID, "deleted": true})
}

// invalidateRuleMonths drops cached forecasts for the edited month and every
// month a propagated rule change can reach.
func (s *Server) invalidateRuleMonths(year, month int) {
	s.invalidateForecast(year, month)
	for _, key := range services.FutureMonths(year, month) {
		s.invalidateForecast(key.Year, key.Month)
	}
}
