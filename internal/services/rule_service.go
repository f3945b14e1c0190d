package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
)

// RuleService orchestrates rule edits across SQLite and AMQP. Every write is
// applied to the edited month first, then replicated to future months, via
// the propagation worker when AMQP is configured or in-process otherwise.
type RuleService struct {
	store      RuleStore
	amqpClient *amqp.Client
	propagator *Propagator
}

func NewRuleService(store RuleStore, amqpClient *amqp.Client) *RuleService {
	return &RuleService{
		store:      store,
		amqpClient: amqpClient,
		propagator: NewPropagator(store),
	}
}

// SaveRule writes the rule into (year, month) and replicates the change to
// future months. Returns true when the rule already existed in that month.
func (s *RuleService) SaveRule(ctx context.Context, year, month int, rule core.Rule) (bool, error) {
	// Save to SQLite first (fast, reliable)
	existed, err := s.store.UpdateRuleIfExists(ctx, year, month, rule)
	if err != nil {
		return false, fmt.Errorf("save rule: %w", err)
	}
	if !existed {
		if err := s.store.UpsertRule(ctx, year, month, rule); err != nil {
			return false, fmt.Errorf("save rule: %w", err)
		}
	}

	op := amqp.RuleCreated
	if existed {
		op = amqp.RuleUpdated
	}
	s.propagate(ctx, amqp.NewRuleChangeMessage(op, year, month, rule))

	return existed, nil
}

// DeleteRule removes the rule from (year, month) and replicates the delete
// to future months. Returns false when the rule was not present.
func (s *RuleService) DeleteRule(ctx context.Context, year, month int, ruleID string) (bool, error) {
	deleted, err := s.store.DeleteRule(ctx, year, month, ruleID)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	if !deleted {
		return false, nil
	}

	s.propagate(ctx, amqp.NewRuleDeleteMessage(year, month, ruleID))

	return true, nil
}

// propagate hands the change to the worker queue, or applies it in-process
// when no AMQP client is configured or the publish fails. The edited month
// is already saved, so a propagation failure never fails the request.
func (s *RuleService) propagate(ctx context.Context, msg *amqp.RuleChangeMessage) {
	if s.amqpClient != nil {
		err := s.amqpClient.PublishRuleChange(ctx, msg)
		if err == nil {
			return
		}
		slog.ErrorContext(ctx, "Failed to publish rule change, applying in-process",
			"op", msg.Op, "rule_id", msg.RuleID, "error", err)
	} else {
		slog.WarnContext(ctx, "AMQP client not available, propagating in-process")
	}

	if err := s.propagator.Apply(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to propagate rule change",
			"op", msg.Op, "rule_id", msg.RuleID, "error", err)
	}
}

// Close closes the AMQP connection if one is configured.
func (s *RuleService) Close() error {
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			return fmt.Errorf("close rule service: %w", err)
		}
	}
	return nil
}
