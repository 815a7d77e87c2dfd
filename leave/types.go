/*
Package leave provides the leave entitlement ledger and request workflow.

PURPOSE:
  This package contains the core domain for leave management: entitlement
  bookkeeping per (employee, leave type), accrual and carry-forward
  computation, and the two-stage request lifecycle (manager then HR) that
  reserves, commits, or releases balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: A day quantity backed by decimal.Decimal (half days supported)
  - EmployeeID / LeaveTypeID / RequestID: Type-safe identifiers
  - Entitlement: The balance record owned by the ledger
  - Reservation: Balance held for a request awaiting decision

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Narrow mutation: Entitlements change only through ledger operations
  3. Idempotency: Every reservation is keyed by its request id
  4. Auditability: Decisions record who, when, and why

USAGE:
  days := leave.NewDays(5)
  bal, err := ledger.GetBalance(ctx, "emp-123", "annual")
  if bal.Available.LessThan(days) { ... }

SEE ALSO:
  - policy.go: Leave policies and the PolicyResolver
  - accrual.go: Periodic accrual computation
  - ledger.go: Atomic reserve/commit/release/reset operations
  - request.go: Request lifecycle state machine
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Leave quantity (whole or half days)
// =============================================================================

type Days struct {
	Value decimal.Decimal
}

func NewDays(value float64) Days {
	return Days{Value: decimal.NewFromFloat(value)}
}

func NewDaysFromInt(value int) Days {
	return Days{Value: decimal.NewFromInt(int64(value))}
}

func ZeroDays() Days {
	return Days{Value: decimal.Zero}
}

func MustParseDays(s string) Days {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroDays()
	}
	return Days{Value: d}
}

func (d Days) Add(o Days) Days              { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days              { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) Mul(s decimal.Decimal) Days   { return Days{Value: d.Value.Mul(s)} }
func (d Days) Neg() Days                    { return Days{Value: d.Value.Neg()} }
func (d Days) IsNegative() bool             { return d.Value.IsNegative() }
func (d Days) IsZero() bool                 { return d.Value.IsZero() }
func (d Days) IsPositive() bool             { return d.Value.IsPositive() }
func (d Days) GreaterThan(o Days) bool      { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool         { return d.Value.LessThan(o.Value) }
func (d Days) Equal(o Days) bool            { return d.Value.Equal(o.Value) }
func (d Days) Min(o Days) Days              { if d.LessThan(o) { return d }; return o }
func (d Days) Max(o Days) Days              { if d.GreaterThan(o) { return d }; return o }
func (d Days) String() string               { return d.Value.String() }
func (d Days) Float64() float64             { f, _ := d.Value.Float64(); return f }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LeaveTypeID string
type RequestID string

// =============================================================================
// ENTITLEMENT - Balance record per (employee, leave type)
// =============================================================================

// Entitlement is the ledger-owned balance record. Taken + Reserved never
// exceeds YearlyEntitlement + CarryForward + AccruedRounded.
type Entitlement struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID

	YearlyEntitlement Days
	CarryForward      Days
	// CarryForwardEarnedAt marks when the carry-forward bucket was rolled
	// in, so expiry rules can drop it at a later reset.
	CarryForwardEarnedAt time.Time

	// AccruedRaw is the exact cumulative accrual; AccruedRounded is the
	// same figure after the policy's rounding rule. Rounding always
	// re-derives from the raw figure so repeated rounding never drifts.
	AccruedRaw     Days
	AccruedRounded Days

	Taken    Days
	Reserved Days

	LastAccrualDate time.Time
	NextResetDate   time.Time

	// Version guards concurrent read-modify-write cycles on the store.
	Version int64
}

// =============================================================================
// BALANCE - Derived snapshot
// =============================================================================

type Balance struct {
	EmployeeID        EmployeeID
	LeaveTypeID       LeaveTypeID
	YearlyEntitlement Days
	CarryForward      Days
	AccruedRounded    Days
	Taken             Days
	Reserved          Days
	Available         Days
}

// Available derives the spendable balance from the entitlement snapshot.
func (e *Entitlement) Available() Days {
	return e.YearlyEntitlement.
		Add(e.CarryForward).
		Add(e.AccruedRounded).
		Sub(e.Taken).
		Sub(e.Reserved)
}

func (e *Entitlement) Balance() Balance {
	return Balance{
		EmployeeID:        e.EmployeeID,
		LeaveTypeID:       e.LeaveTypeID,
		YearlyEntitlement: e.YearlyEntitlement,
		CarryForward:      e.CarryForward,
		AccruedRounded:    e.AccruedRounded,
		Taken:             e.Taken,
		Reserved:          e.Reserved,
		Available:         e.Available(),
	}
}

// =============================================================================
// RESERVATION - Balance held for a request awaiting decision
// =============================================================================

type ReservationStatus string

const (
	ReservationOpen      ReservationStatus = "open"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is the idempotency record behind reserve/commit/release.
// One reservation per request id, ever.
type Reservation struct {
	RequestID   RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Days        Days
	Status      ReservationStatus
	CreatedAt   time.Time
	ResolvedAt  time.Time
}

// =============================================================================
// EMPLOYEE - Registry record (external collaborators need existence checks)
// =============================================================================

type Employee struct {
	ID      EmployeeID
	Name    string
	Email   string
	HiredAt time.Time
	Active  bool
}

// TenureMonths returns whole months of employment as of the given date.
func (e *Employee) TenureMonths(asOf time.Time) int {
	return wholeMonthsBetween(e.HiredAt, asOf)
}

// =============================================================================
// HOLIDAY - Calendar record used when computing request durations
// =============================================================================

type Holiday struct {
	Date time.Time
	Name string
}
