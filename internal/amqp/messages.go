package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// RuleChangeOp names the kind of rule edit being propagated.
type RuleChangeOp string

const (
	RuleCreated RuleChangeOp = "created"
	RuleUpdated RuleChangeOp = "updated"
	RuleDeleted RuleChangeOp = "deleted"
)

// RulePayload is the wire form of a rule. Amounts travel as strings so the
// decimal representation survives JSON intact.
type RulePayload struct {
	ID           string `json:"id"`
	Amount       string `json:"amount"`
	Kind         string `json:"kind"`
	Schedule     string `json:"schedule"`
	DayOfMonth   int    `json:"day_of_month,omitempty"`
	Distribution string `json:"distribution,omitempty"`
	DayOfWeek    int    `json:"day_of_week,omitempty"`
	Category     string `json:"category"`
}

// RuleChangeMessage tells the propagation worker to replicate a rule edit
// from (Year, Month) across the stored future months. Deleted changes carry
// only the rule id.
type RuleChangeMessage struct {
	Op        RuleChangeOp `json:"op"`
	Year      int          `json:"year"`
	Month     int          `json:"month"`
	RuleID    string       `json:"rule_id"`
	Rule      *RulePayload `json:"rule,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewRuleChangeMessage builds a message for a create or update.
func NewRuleChangeMessage(op RuleChangeOp, year, month int, rule core.Rule) *RuleChangeMessage {
	payload := PayloadFromRule(rule)
	return &RuleChangeMessage{
		Op:        op,
		Year:      year,
		Month:     month,
		RuleID:    rule.ID,
		Rule:      &payload,
		Timestamp: time.Now(),
	}
}

// NewRuleDeleteMessage builds a message for a delete.
func NewRuleDeleteMessage(year, month int, ruleID string) *RuleChangeMessage {
	return &RuleChangeMessage{
		Op:        RuleDeleted,
		Year:      year,
		Month:     month,
		RuleID:    ruleID,
		Timestamp: time.Now(),
	}
}

// PayloadFromRule converts a domain rule to its wire form.
func PayloadFromRule(r core.Rule) RulePayload {
	return RulePayload{
		ID:           r.ID,
		Amount:       r.Amount.String(),
		Kind:         string(r.Kind),
		Schedule:     string(r.Schedule),
		DayOfMonth:   r.DayOfMonth,
		Distribution: string(r.Distribution),
		DayOfWeek:    int(r.DayOfWeek),
		Category:     r.Category,
	}
}

// ToRule converts the wire form back to a domain rule.
func (p RulePayload) ToRule() (core.Rule, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return core.Rule{}, fmt.Errorf("parse amount %q: %w", p.Amount, err)
	}
	return core.Rule{
		ID:           p.ID,
		Amount:       amount,
		Kind:         core.RuleKind(p.Kind),
		Schedule:     core.ScheduleType(p.Schedule),
		DayOfMonth:   p.DayOfMonth,
		Distribution: core.Distribution(p.Distribution),
		DayOfWeek:    time.Weekday(p.DayOfWeek),
		Category:     p.Category,
	}, nil
}

// ToJSON converts the message to JSON bytes
func (m *RuleChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RuleChangeMessageFromJSON creates a message from JSON bytes
func RuleChangeMessageFromJSON(data []byte) (*RuleChangeMessage, error) {
	var msg RuleChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
