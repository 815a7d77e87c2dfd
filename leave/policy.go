/*
policy.go - Leave policies and the PolicyResolver

PURPOSE:
  A Policy describes how one leave type behaves: how balance accrues,
  how it rounds, what carries forward, and which submission rules apply.
  Policies are read-only to this package; configuration management owns
  creating and updating them.

KEY CONCEPTS:
  - AccrualMethod: NONE, MONTHLY, YEARLY, or HYBRID
  - RoundingRule: applied to the cumulative accrued figure, half-day grain
  - PolicyResolver: lookup from leave type to its policy

SEE ALSO:
  - accrual.go: Consumes policies to compute accrual deltas
  - request.go: Enforces submission rules (duration, attachment, tenure)
  - factory/policy.go: Builds policies from JSON definitions
*/
package leave

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL METHOD
// =============================================================================

type AccrualMethod string

const (
	AccrualNone    AccrualMethod = "NONE"
	AccrualMonthly AccrualMethod = "MONTHLY"
	AccrualYearly  AccrualMethod = "YEARLY"
	// AccrualHybrid combines a monthly drip with a yearly grant at each
	// policy-year boundary.
	AccrualHybrid AccrualMethod = "HYBRID"
)

func (m AccrualMethod) Valid() bool {
	switch m {
	case AccrualNone, AccrualMonthly, AccrualYearly, AccrualHybrid:
		return true
	}
	return false
}

// =============================================================================
// ROUNDING RULE
// =============================================================================

type RoundingRule string

const (
	RoundNone        RoundingRule = "NONE"
	RoundUp          RoundingRule = "UP"
	RoundDown        RoundingRule = "DOWN"
	RoundNearestHalf RoundingRule = "NEAREST_HALF"
)

func (r RoundingRule) Valid() bool {
	switch r {
	case RoundNone, RoundUp, RoundDown, RoundNearestHalf:
		return true
	}
	return false
}

var half = decimal.NewFromFloat(0.5)

// Apply rounds a cumulative accrued figure to the half-day grain this
// rule prescribes. NONE returns the input unchanged.
func (r RoundingRule) Apply(d Days) Days {
	switch r {
	case RoundUp:
		return Days{Value: d.Value.Div(half).Ceil().Mul(half)}
	case RoundDown:
		return Days{Value: d.Value.Div(half).Floor().Mul(half)}
	case RoundNearestHalf:
		return Days{Value: d.Value.Div(half).Round(0).Mul(half)}
	default:
		return d
	}
}

// =============================================================================
// POLICY
// =============================================================================

type Policy struct {
	LeaveTypeID LeaveTypeID
	Name        string

	AccrualMethod AccrualMethod
	MonthlyRate   Days
	YearlyRate    Days
	RoundingRule  RoundingRule

	CarryForwardAllowed bool
	MaxCarryForward     Days
	// ExpiryAfterMonths drops carried-forward balance that has aged past
	// this many months at the next period reset. Zero means no expiry.
	ExpiryAfterMonths int

	MinRequestDays     Days
	MaxConsecutiveDays Days // zero means unlimited
	RequiresAttachment bool
	MinTenureMonths    int
}

func (p *Policy) Validate() error {
	if p.LeaveTypeID == "" {
		return &ValidationError{Field: "leaveTypeId", Rule: "required", Message: "leave type id is required"}
	}
	if !p.AccrualMethod.Valid() {
		return &ValidationError{Field: "accrualMethod", Rule: "enum",
			Message: fmt.Sprintf("unknown accrual method %q", p.AccrualMethod)}
	}
	if !p.RoundingRule.Valid() {
		return &ValidationError{Field: "roundingRule", Rule: "enum",
			Message: fmt.Sprintf("unknown rounding rule %q", p.RoundingRule)}
	}
	if p.MonthlyRate.IsNegative() || p.YearlyRate.IsNegative() {
		return &ValidationError{Field: "rate", Rule: "non_negative", Message: "accrual rates cannot be negative"}
	}
	if p.MaxCarryForward.IsNegative() {
		return &ValidationError{Field: "maxCarryForward", Rule: "non_negative", Message: "carry-forward cap cannot be negative"}
	}
	return nil
}

// =============================================================================
// POLICY RESOLVER
// =============================================================================

// PolicyResolver looks up the policy for a leave type. Implementations
// return ErrPolicyNotFound when the leave type has no policy.
type PolicyResolver interface {
	Resolve(ctx context.Context, leaveTypeID LeaveTypeID) (*Policy, error)
}

// PolicyStore is the persistence surface the resolver reads from.
type PolicyStore interface {
	GetPolicy(ctx context.Context, leaveTypeID LeaveTypeID) (*Policy, error)
	ListPolicies(ctx context.Context) ([]*Policy, error)
	SavePolicy(ctx context.Context, p *Policy) error
	DeletePolicy(ctx context.Context, leaveTypeID LeaveTypeID) error
}

// CachedResolver memoizes policy lookups. Policies change rarely and
// through admin endpoints, which call Invalidate.
type CachedResolver struct {
	store PolicyStore

	mu    sync.RWMutex
	cache map[LeaveTypeID]*Policy
}

func NewCachedResolver(store PolicyStore) *CachedResolver {
	return &CachedResolver{
		store: store,
		cache: make(map[LeaveTypeID]*Policy),
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, leaveTypeID LeaveTypeID) (*Policy, error) {
	r.mu.RLock()
	p, ok := r.cache[leaveTypeID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.store.GetPolicy(ctx, leaveTypeID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[leaveTypeID] = p
	r.mu.Unlock()
	return p, nil
}

func (r *CachedResolver) Invalidate(leaveTypeID LeaveTypeID) {
	r.mu.Lock()
	delete(r.cache, leaveTypeID)
	r.mu.Unlock()
}
