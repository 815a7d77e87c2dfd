/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into leave.Policy values. This
  enables policy configuration without code changes - HR can define
  policies in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify policies
  - Easy integration with admin UI
  - Version control for policy definitions
  - Seed files for new deployments

JSON SCHEMA:
  {
    "leave_type_id": "annual",
    "name": "Annual Leave",
    "accrual": {
      "method": "MONTHLY",
      "monthly_rate": 1.75,
      "rounding": "NEAREST_HALF"
    },
    "carry_forward": {
      "allowed": true,
      "max_days": 5,
      "expiry_after_months": 3
    },
    "request_rules": {
      "min_days": 0.5,
      "max_consecutive_days": 15,
      "requires_attachment": false,
      "min_tenure_months": 0
    }
  }

KEY FEATURES:
  - Validates JSON structure against the policy enums
  - Sets sensible defaults (NONE accrual, NONE rounding)
  - Round-trips policies back to JSON for the admin API

USAGE:
  factory := NewPolicyFactory()
  policy, err := factory.ParsePolicy(jsonString)
  if err != nil { ... }
  store.SavePolicy(ctx, policy)

SEE ALSO:
  - leave/policy.go: Policy type definition
  - factory/presets.go: Common preset policies
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/atlashr/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a leave policy.
type PolicyJSON struct {
	LeaveTypeID  string            `json:"leave_type_id"`
	Name         string            `json:"name"`
	Accrual      *AccrualJSON      `json:"accrual,omitempty"`
	CarryForward *CarryForwardJSON `json:"carry_forward,omitempty"`
	RequestRules *RequestRulesJSON `json:"request_rules,omitempty"`
}

// AccrualJSON represents accrual configuration.
type AccrualJSON struct {
	Method      string  `json:"method"` // NONE, MONTHLY, YEARLY, HYBRID
	MonthlyRate float64 `json:"monthly_rate,omitempty"`
	YearlyRate  float64 `json:"yearly_rate,omitempty"`
	Rounding    string  `json:"rounding,omitempty"` // NONE, UP, DOWN, NEAREST_HALF
}

// CarryForwardJSON represents carry-forward configuration.
type CarryForwardJSON struct {
	Allowed           bool    `json:"allowed"`
	MaxDays           float64 `json:"max_days,omitempty"`
	ExpiryAfterMonths int     `json:"expiry_after_months,omitempty"`
}

// RequestRulesJSON represents submission rules.
type RequestRulesJSON struct {
	MinDays            float64 `json:"min_days,omitempty"`
	MaxConsecutiveDays float64 `json:"max_consecutive_days,omitempty"`
	RequiresAttachment bool    `json:"requires_attachment,omitempty"`
	MinTenureMonths    int     `json:"min_tenure_months,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a leave.Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*leave.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to a leave.Policy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*leave.Policy, error) {
	policy := &leave.Policy{
		LeaveTypeID:   leave.LeaveTypeID(pj.LeaveTypeID),
		Name:          pj.Name,
		AccrualMethod: leave.AccrualNone,
		RoundingRule:  leave.RoundNone,
	}

	if pj.Accrual != nil {
		policy.AccrualMethod = leave.AccrualMethod(pj.Accrual.Method)
		policy.MonthlyRate = leave.NewDays(pj.Accrual.MonthlyRate)
		policy.YearlyRate = leave.NewDays(pj.Accrual.YearlyRate)
		if pj.Accrual.Rounding != "" {
			policy.RoundingRule = leave.RoundingRule(pj.Accrual.Rounding)
		}
	}

	if pj.CarryForward != nil {
		policy.CarryForwardAllowed = pj.CarryForward.Allowed
		policy.MaxCarryForward = leave.NewDays(pj.CarryForward.MaxDays)
		policy.ExpiryAfterMonths = pj.CarryForward.ExpiryAfterMonths
	}

	if pj.RequestRules != nil {
		policy.MinRequestDays = leave.NewDays(pj.RequestRules.MinDays)
		policy.MaxConsecutiveDays = leave.NewDays(pj.RequestRules.MaxConsecutiveDays)
		policy.RequiresAttachment = pj.RequestRules.RequiresAttachment
		policy.MinTenureMonths = pj.RequestRules.MinTenureMonths
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// ToJSON converts a leave.Policy back to its JSON representation.
func (f *PolicyFactory) ToJSON(policy *leave.Policy) PolicyJSON {
	pj := PolicyJSON{
		LeaveTypeID: string(policy.LeaveTypeID),
		Name:        policy.Name,
		Accrual: &AccrualJSON{
			Method:      string(policy.AccrualMethod),
			MonthlyRate: policy.MonthlyRate.Float64(),
			YearlyRate:  policy.YearlyRate.Float64(),
			Rounding:    string(policy.RoundingRule),
		},
		CarryForward: &CarryForwardJSON{
			Allowed:           policy.CarryForwardAllowed,
			MaxDays:           policy.MaxCarryForward.Float64(),
			ExpiryAfterMonths: policy.ExpiryAfterMonths,
		},
		RequestRules: &RequestRulesJSON{
			MinDays:            policy.MinRequestDays.Float64(),
			MaxConsecutiveDays: policy.MaxConsecutiveDays.Float64(),
			RequiresAttachment: policy.RequiresAttachment,
			MinTenureMonths:    policy.MinTenureMonths,
		},
	}
	return pj
}
