package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"bilancio/internal/core"
)

type balanceRequest struct {
	Day   int    `json:"day"`
	Value string `json:"value"`
}

type balanceResponse struct {
	Day   int    `json:"day"`
	Value string `json:"value"`
}

type startBalanceRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListBalances(w, r)
	case http.MethodPut:
		s.handlePutBalance(w, r)
	case http.MethodDelete:
		s.handleDeleteBalance(w, r)
	default:
		methodNotAllowed(w, "GET, PUT, DELETE")
	}
}

func (s *Server) handleListBalances(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	observed, err := s.store.ListObserved(r.Context(), year, month)
	if err != nil {
		slog.ErrorContext(r.Context(), "List balances error", "error", err, "year", year, "month", month)
		writeError(w, http.StatusInternalServerError, "list balances failed")
		return
	}

	resp := make([]balanceResponse, 0, len(observed))
	for _, o := range observed {
		resp = append(resp, balanceResponse{Day: o.Day, Value: o.Value.String()})
	}

	writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "balances": resp})
}

func (s *Server) handlePutBalance(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var req balanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.ErrorContext(r.Context(), "Decode balance error", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Observed balances may legitimately be zero or negative (overdraft),
	// so parse directly rather than through the rule amount rules.
	value, err := core.ParseSignedAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid value")
		return
	}

	observed := core.ObservedBalance{Day: req.Day, Value: value}
	if err := observed.Validate(core.DaysInMonth(year, month)); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.store.UpsertObserved(r.Context(), year, month, observed); err != nil {
		slog.ErrorContext(r.Context(), "Save balance error", "error", err, "year", year, "month", month, "day", observed.Day)
		writeError(w, http.StatusInternalServerError, "save balance failed")
		return
	}

	s.invalidateForecast(year, month)

	writeJSON(w, http.StatusOK, balanceResponse{Day: observed.Day, Value: observed.Value.String()})
}

func (s *Server) handleDeleteBalance(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	dayStr := strings.TrimSpace(r.URL.Query().Get("day"))
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > core.DaysInMonth(year, month) {
		writeError(w, http.StatusUnprocessableEntity, "invalid day")
		return
	}

	deleted, err := s.store.DeleteObserved(r.Context(), year, month, day)
	if err != nil {
		slog.ErrorContext(r.Context(), "Delete balance error", "error", err, "year", year, "month", month, "day", day)
		writeError(w, http.StatusInternalServerError, "delete balance failed")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "balance not found")
		return
	}

	s.invalidateForecast(year, month)

	writeJSON(w, http.StatusOK, map[string]any{"day": day, "deleted": true})
}

func (s *Server) handleStartBalance(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseYearMonth(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		balance, err := s.store.GetStartBalance(r.Context(), year, month)
		if err != nil {
			slog.ErrorContext(r.Context(), "Get start balance error", "error", err, "year", year, "month", month)
			writeError(w, http.StatusInternalServerError, "get start balance failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"value": balance.String()})
	case http.MethodPut:
		var req startBalanceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.ErrorContext(r.Context(), "Decode start balance error", "error", err)
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		value, err := core.ParseSignedAmount(req.Value)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid value")
			return
		}

		if err := s.store.SetStartBalance(r.Context(), year, month, value); err != nil {
			slog.ErrorContext(r.Context(), "Set start balance error", "error", err, "year", year, "month", month)
			writeError(w, http.StatusInternalServerError, "set start balance failed")
			return
		}

		s.invalidateForecast(year, month)

		writeJSON(w, http.StatusOK, map[string]string{"value": value.String()})
	default:
		methodNotAllowed(w, "GET, PUT")
	}
}
