// Package sheets exports forecast snapshots to a Google spreadsheet. Each
// export appends the month's day-by-day projection below whatever rows the
// sheet already holds, so successive exports build an audit trail.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Forecast"); code prefixes the year.
	sheetBase string
}

// NewFromConfig creates a Sheets client for the given spreadsheet using
// Service Account credentials from the environment.
func NewFromConfig(ctx context.Context, spreadsheetID, sheetBase string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetBase = strings.TrimSpace(sheetBase)
	if sheetBase == "" {
		sheetBase = "Forecast"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     sheetBase,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))

	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return service, nil
}

// ExportMonth appends the month's projection to the year's forecast sheet and
// returns a range reference for the written block.
func (c *Client) ExportMonth(ctx context.Context, year, month int, points []core.SimulationPoint) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(points) == 0 {
		return "", errors.New("nothing to export")
	}

	sheetName := c.sheetName(year)
	rows := ForecastRows(year, month, points)

	// Find the next empty row by getting the sheet dimensions first
	rng := fmt.Sprintf("%s!A:A", sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", sheetName, err)
	}

	firstRow := len(resp.Values) + 1
	lastRow := firstRow + len(rows) - 1

	dataRange := fmt.Sprintf("%s!A%d:F%d", sheetName, firstRow, lastRow)
	vr := &gsheet.ValueRange{Values: rows}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write forecast rows to %s: %w", sheetName, err)
	}

	slog.InfoContext(ctx, "Exported forecast to Google Sheets",
		applog.FieldYear, year,
		applog.FieldMonth, month,
		"days", len(points),
		applog.FieldSheetsRef, dataRange,
		applog.FieldComponent, applog.ComponentExport)

	return dataRange, nil
}

// ForecastRows converts simulation points to spreadsheet rows. The first row
// is a header; actual balances are blank on days without an observation.
func ForecastRows(year, month int, points []core.SimulationPoint) [][]any {
	rows := make([][]any, 0, len(points)+1)
	rows = append(rows, []any{"Year", "Month", "Day", "Projected", "Actual", "Daily Delta"})
	for _, p := range points {
		actual := any("")
		if p.ActualBalance != nil {
			actual = p.ActualBalance.String()
		}
		rows = append(rows, []any{year, month, p.Day, p.Balance.String(), actual, p.DailyDelta.String()})
	}
	return rows
}

func (c *Client) sheetName(year int) string {
	return yearPrefixedName(c.sheetBase, year)
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
