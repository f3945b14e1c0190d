// Package storage persists rule sets, observed balances, and month settings
// in SQLite. Each month owns an independent rule list keyed (year, month);
// the forecast engine never touches this package, it only receives the
// slices the repository returns.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ListRules returns the rule list a month owns, in insertion order.
func (r *SQLiteRepository) ListRules(ctx context.Context, year, month int) ([]core.Rule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rule_id, amount, kind, schedule, day_of_month, distribution, day_of_week, category
		FROM rules
		WHERE year = ? AND month = ?
		ORDER BY created_at, rule_id`,
		year, month)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []core.Rule
	for rows.Next() {
		var (
			rule      core.Rule
			amount    string
			dayOfWeek int
		)
		if err := rows.Scan(&rule.ID, &amount, &rule.Kind, &rule.Schedule,
			&rule.DayOfMonth, &rule.Distribution, &dayOfWeek, &rule.Category); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse stored amount %q for rule %s: %w", amount, rule.ID, err)
		}
		rule.DayOfWeek = time.Weekday(dayOfWeek)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return rules, nil
}

// UpsertRule inserts the rule into a month's list, replacing a previous
// version with the same id.
func (r *SQLiteRepository) UpsertRule(ctx context.Context, year, month int, rule core.Rule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rules (year, month, rule_id, amount, kind, schedule, day_of_month, distribution, day_of_week, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (year, month, rule_id) DO UPDATE SET
			amount = excluded.amount,
			kind = excluded.kind,
			schedule = excluded.schedule,
			day_of_month = excluded.day_of_month,
			distribution = excluded.distribution,
			day_of_week = excluded.day_of_week,
			category = excluded.category,
			updated_at = CURRENT_TIMESTAMP`,
		year, month, rule.ID, rule.Amount.String(), string(rule.Kind), string(rule.Schedule),
		rule.DayOfMonth, string(rule.Distribution), int(rule.DayOfWeek), rule.Category)
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}

	slog.InfoContext(ctx, "Rule saved",
		"rule_id", rule.ID, "year", year, "month", month,
		"kind", rule.Kind, "schedule", rule.Schedule, "amount", rule.Amount.String())
	return nil
}

// UpdateRuleIfExists applies the rule's fields to a month only when that
// month still carries the same rule id. Reports whether a row changed.
// Propagation uses this to leave independently-deleted rules alone.
func (r *SQLiteRepository) UpdateRuleIfExists(ctx context.Context, year, month int, rule core.Rule) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rules SET
			amount = ?, kind = ?, schedule = ?, day_of_month = ?,
			distribution = ?, day_of_week = ?, category = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE year = ? AND month = ? AND rule_id = ?`,
		rule.Amount.String(), string(rule.Kind), string(rule.Schedule), rule.DayOfMonth,
		string(rule.Distribution), int(rule.DayOfWeek), rule.Category,
		year, month, rule.ID)
	if err != nil {
		return false, fmt.Errorf("update rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteRule removes a rule from a month's list. Reports whether it existed.
func (r *SQLiteRepository) DeleteRule(ctx context.Context, year, month int, ruleID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rules WHERE year = ? AND month = ? AND rule_id = ?`,
		year, month, ruleID)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Rule deleted", "rule_id", ruleID, "year", year, "month", month)
	}
	return n > 0, nil
}

// ListObserved returns a month's observed balances in day order.
func (r *SQLiteRepository) ListObserved(ctx context.Context, year, month int) ([]core.ObservedBalance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, value FROM observed_balances
		WHERE year = ? AND month = ?
		ORDER BY day`,
		year, month)
	if err != nil {
		return nil, fmt.Errorf("list observed balances: %w", err)
	}
	defer rows.Close()

	var observed []core.ObservedBalance
	for rows.Next() {
		var (
			o     core.ObservedBalance
			value string
		)
		if err := rows.Scan(&o.Day, &value); err != nil {
			return nil, fmt.Errorf("scan observed balance: %w", err)
		}
		o.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse stored value %q for day %d: %w", value, o.Day, err)
		}
		observed = append(observed, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observed balances: %w", err)
	}
	return observed, nil
}

// UpsertObserved records an observed balance; a second write for the same
// day wins over the first.
func (r *SQLiteRepository) UpsertObserved(ctx context.Context, year, month int, o core.ObservedBalance) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO observed_balances (year, month, day, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (year, month, day) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		year, month, o.Day, o.Value.String())
	if err != nil {
		return fmt.Errorf("upsert observed balance: %w", err)
	}

	slog.InfoContext(ctx, "Observed balance saved",
		"year", year, "month", month, "day", o.Day, "value", o.Value.String())
	return nil
}

// DeleteObserved removes an observed balance. Reports whether it existed.
func (r *SQLiteRepository) DeleteObserved(ctx context.Context, year, month, day int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM observed_balances WHERE year = ? AND month = ? AND day = ?`,
		year, month, day)
	if err != nil {
		return false, fmt.Errorf("delete observed balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetStartBalance returns the month's initial balance, zero when unset.
func (r *SQLiteRepository) GetStartBalance(ctx context.Context, year, month int) (decimal.Decimal, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT start_balance FROM month_settings WHERE year = ? AND month = ?`,
		year, month).Scan(&value)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get start balance: %w", err)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse stored start balance %q: %w", value, err)
	}
	return d, nil
}

// SetStartBalance stores the month's initial balance.
func (r *SQLiteRepository) SetStartBalance(ctx context.Context, year, month int, balance decimal.Decimal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO month_settings (year, month, start_balance)
		VALUES (?, ?, ?)
		ON CONFLICT (year, month) DO UPDATE SET
			start_balance = excluded.start_balance,
			updated_at = CURRENT_TIMESTAMP`,
		year, month, balance.String())
	if err != nil {
		return fmt.Errorf("set start balance: %w", err)
	}

	slog.InfoContext(ctx, "Start balance saved",
		"year", year, "month", month, "balance", balance.String())
	return nil
}
