package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// RuleStore is the subset of storage operations propagation needs.
type RuleStore interface {
	UpsertRule(ctx context.Context, year, month int, rule core.Rule) error
	UpdateRuleIfExists(ctx context.Context, year, month int, rule core.Rule) (bool, error)
	DeleteRule(ctx context.Context, year, month int, ruleID string) (bool, error)
}

// MonthKey identifies one stored month.
type MonthKey struct {
	Year  int
	Month int
}

// FutureMonths lists the months a change made in (year, month) replicates
// into: every month strictly after the edit point through December of the
// following year.
func FutureMonths(year, month int) []MonthKey {
	var keys []MonthKey
	y, m := year, month
	for {
		m++
		if m > 12 {
			m = 1
			y++
		}
		if y > year+1 {
			break
		}
		keys = append(keys, MonthKey{Year: y, Month: m})
	}
	return keys
}

// Propagator replicates rule edits into future months. Created rules are
// inserted everywhere; updates and deletes only touch months that still
// carry the rule, so a month the user already reshaped keeps its own version.
type Propagator struct {
	store RuleStore
}

func NewPropagator(store RuleStore) *Propagator {
	return &Propagator{store: store}
}

// PropagateCreate inserts the rule into every future month. Returns the
// number of months touched.
func (p *Propagator) PropagateCreate(ctx context.Context, year, month int, rule core.Rule) (int, error) {
	touched := 0
	for _, key := range FutureMonths(year, month) {
		if err := p.store.UpsertRule(ctx, key.Year, key.Month, rule); err != nil {
			return touched, fmt.Errorf("propagate create to %d-%02d: %w", key.Year, key.Month, err)
		}
		touched++
	}
	return touched, nil
}

// PropagateUpdate rewrites the rule in future months where it still exists.
// Months that dropped the rule are left alone. Returns the number of months
// touched.
func (p *Propagator) PropagateUpdate(ctx context.Context, year, month int, rule core.Rule) (int, error) {
	touched := 0
	for _, key := range FutureMonths(year, month) {
		updated, err := p.store.UpdateRuleIfExists(ctx, key.Year, key.Month, rule)
		if err != nil {
			return touched, fmt.Errorf("propagate update to %d-%02d: %w", key.Year, key.Month, err)
		}
		if updated {
			touched++
		}
	}
	return touched, nil
}

// PropagateDelete removes the rule from future months where it exists.
// Returns the number of months touched.
func (p *Propagator) PropagateDelete(ctx context.Context, year, month int, ruleID string) (int, error) {
	touched := 0
	for _, key := range FutureMonths(year, month) {
		deleted, err := p.store.DeleteRule(ctx, key.Year, key.Month, ruleID)
		if err != nil {
			return touched, fmt.Errorf("propagate delete to %d-%02d: %w", key.Year, key.Month, err)
		}
		if deleted {
			touched++
		}
	}
	return touched, nil
}

// Apply dispatches a rule change message to the matching propagation. Used
// by the propagation worker as its consume handler.
func (p *Propagator) Apply(ctx context.Context, msg *amqp.RuleChangeMessage) error {
	var (
		touched int
		err     error
	)

	switch msg.Op {
	case amqp.RuleCreated, amqp.RuleUpdated:
		if msg.Rule == nil {
			return fmt.Errorf("%s message without rule payload", msg.Op)
		}
		rule, convErr := msg.Rule.ToRule()
		if convErr != nil {
			return fmt.Errorf("decode rule payload: %w", convErr)
		}
		if valErr := rule.Validate(); valErr != nil {
			return fmt.Errorf("invalid rule payload: %w", valErr)
		}
		if msg.Op == amqp.RuleCreated {
			touched, err = p.PropagateCreate(ctx, msg.Year, msg.Month, rule)
		} else {
			touched, err = p.PropagateUpdate(ctx, msg.Year, msg.Month, rule)
		}
	case amqp.RuleDeleted:
		touched, err = p.PropagateDelete(ctx, msg.Year, msg.Month, msg.RuleID)
	default:
		return fmt.Errorf("unknown rule change op: %s", msg.Op)
	}

	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Propagated rule change",
		applog.FieldOperation, msg.Op,
		applog.FieldRuleID, msg.RuleID,
		applog.FieldYear, msg.Year,
		applog.FieldMonth, msg.Month,
		applog.FieldMonthsTouched, touched,
		applog.FieldComponent, applog.ComponentPropagation)

	return nil
}
