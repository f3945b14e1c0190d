package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilancio/internal/core"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// parseYearMonth extracts year and month from query parameters. Both are
// required and validated; month defaults are deliberately not applied so a
// typo never silently forecasts the wrong month.
func parseYearMonth(r *http.Request) (year, month int, err error) {
	yearStr := strings.TrimSpace(r.URL.Query().Get("year"))
	monthStr := strings.TrimSpace(r.URL.Query().Get("month"))
	if yearStr == "" || monthStr == "" {
		return 0, 0, fmt.Errorf("year and month query parameters are required")
	}

	year, err = strconv.Atoi(yearStr)
	if err != nil || year < 1900 || year > 3000 {
		return 0, 0, fmt.Errorf("invalid year: %s", yearStr)
	}

	month, err = strconv.Atoi(monthStr)
	if err != nil || !core.ValidMonth(month) {
		return 0, 0, fmt.Errorf("invalid month: %s", monthStr)
	}

	return year, month, nil
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
