/*
ledger.go - The entitlement ledger

PURPOSE:
  The ledger owns every entitlement mutation. Balance is reserved when a
  request is submitted, committed when HR gives final approval, and
  released on any rejection or cancellation. Each operation is atomic
  per (employee, leave type) and idempotent per request id.

CONCURRENCY:
  Two layers guard every mutation:
  1. A per-(employee, leave type) mutex serializes in-process callers.
  2. An optimistic version check on the entitlement row catches writers
     outside this process; conflicting writes retry a bounded number of
     times before surfacing ErrConcurrencyConflict.
  Operations on different keys never block each other. The availability
  check inside Reserve happens with the lock held, so check-then-act is
  never split.

SEE ALSO:
  - types.go: Entitlement and Reservation records
  - accrual.go: ComputeAccrual, applied here by RunAccrual
  - request.go: The lifecycle that drives reserve/commit/release
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// EntitlementStore persists entitlements and reservations. Update
// operations compare against expectedVersion and return
// ErrConcurrencyConflict when the row has moved on; on success the
// stored version is expectedVersion+1.
type EntitlementStore interface {
	GetEntitlement(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID) (*Entitlement, error)
	CreateEntitlement(ctx context.Context, ent *Entitlement) error
	UpdateEntitlement(ctx context.Context, ent *Entitlement, expectedVersion int64) error
	ListEntitlements(ctx context.Context) ([]*Entitlement, error)

	GetReservation(ctx context.Context, requestID RequestID) (*Reservation, error)
	// UpdateEntitlementWithReservation applies the entitlement mutation
	// and the reservation upsert in one transaction, guarded by the same
	// version check.
	UpdateEntitlementWithReservation(ctx context.Context, ent *Entitlement, expectedVersion int64, res *Reservation) error
}

// =============================================================================
// LEDGER
// =============================================================================

const maxMutationRetries = 3

type Ledger struct {
	store    EntitlementStore
	resolver PolicyResolver
	locks    keyedMutex
	now      func() time.Time
}

func NewLedger(store EntitlementStore, resolver PolicyResolver) *Ledger {
	return &Ledger{
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// =============================================================================
// ASSIGNMENT & READS
// =============================================================================

// Assign creates the entitlement for an (employee, leave type) pair. The
// period runs from periodStart to the next calendar year boundary.
func (l *Ledger) Assign(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, yearly Days, periodStart time.Time) (*Entitlement, error) {
	if yearly.IsNegative() {
		return nil, &ValidationError{Field: "yearlyEntitlement", Rule: "non_negative",
			Message: "yearly entitlement cannot be negative"}
	}
	if _, err := l.resolver.Resolve(ctx, leaveTypeID); err != nil {
		return nil, err
	}

	unlock := l.locks.lock(entitlementKey(employeeID, leaveTypeID))
	defer unlock()

	ent := &Entitlement{
		EmployeeID:        employeeID,
		LeaveTypeID:       leaveTypeID,
		YearlyEntitlement: yearly,
		CarryForward:      ZeroDays(),
		AccruedRaw:        ZeroDays(),
		AccruedRounded:    ZeroDays(),
		Taken:             ZeroDays(),
		Reserved:          ZeroDays(),
		LastAccrualDate:   periodStart,
		NextResetDate:     nextYearBoundary(periodStart),
		Version:           1,
	}
	if err := l.store.CreateEntitlement(ctx, ent); err != nil {
		return nil, fmt.Errorf("assign entitlement: %w", err)
	}
	return ent, nil
}

// GetBalance returns the current balance snapshot.
func (l *Ledger) GetBalance(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID) (Balance, error) {
	ent, err := l.store.GetEntitlement(ctx, employeeID, leaveTypeID)
	if err != nil {
		return Balance{}, err
	}
	return ent.Balance(), nil
}

// GetAvailable returns the spendable balance. Display reads only; the
// reserve decision re-checks under the lock.
func (l *Ledger) GetAvailable(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID) (Days, error) {
	bal, err := l.GetBalance(ctx, employeeID, leaveTypeID)
	if err != nil {
		return ZeroDays(), err
	}
	return bal.Available, nil
}

// =============================================================================
// RESERVE / COMMIT / RELEASE
// =============================================================================

// Reserve holds days for a request awaiting decision. Fails with
// InsufficientBalance when available < days. A second call with the same
// request id against an open or committed reservation is a success
// no-op, so submission retries never double-reserve. A released
// reservation is reopened with the new day count, which is what an
// amended request does through release+reserve.
func (l *Ledger) Reserve(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, days Days, requestID RequestID) error {
	if !days.IsPositive() {
		return &ValidationError{Field: "days", Rule: "positive", Message: "reservation must be for a positive number of days"}
	}

	unlock := l.locks.lock(entitlementKey(employeeID, leaveTypeID))
	defer unlock()

	existing, err := l.store.GetReservation(ctx, requestID)
	if err != nil && !errors.Is(err, ErrReservationNotFound) {
		return err
	}
	if existing != nil && existing.Status != ReservationReleased {
		return nil
	}

	return l.mutate(ctx, employeeID, leaveTypeID, func(ent *Entitlement) (*Reservation, error) {
		available := ent.Available()
		if available.LessThan(days) {
			return nil, &InsufficientBalanceError{
				EmployeeID:  employeeID,
				LeaveTypeID: leaveTypeID,
				Available:   available,
				Requested:   days,
				Shortfall:   days.Sub(available),
			}
		}
		ent.Reserved = ent.Reserved.Add(days)
		return &Reservation{
			RequestID:   requestID,
			EmployeeID:  employeeID,
			LeaveTypeID: leaveTypeID,
			Days:        days,
			Status:      ReservationOpen,
			CreatedAt:   l.now(),
		}, nil
	})
}

// Commit converts an open reservation into consumption. Fails with
// ReservationNotFound when no open reservation exists for the request;
// a reservation already committed is a success no-op.
func (l *Ledger) Commit(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, requestID RequestID) error {
	unlock := l.locks.lock(entitlementKey(employeeID, leaveTypeID))
	defer unlock()

	res, err := l.store.GetReservation(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return &ReservationNotFoundError{
				RequestID:   requestID,
				EmployeeID:  employeeID,
				LeaveTypeID: leaveTypeID,
				AttemptedAt: l.now(),
			}
		}
		return err
	}
	switch res.Status {
	case ReservationCommitted:
		return nil
	case ReservationReleased:
		return &ReservationNotFoundError{
			RequestID:   requestID,
			EmployeeID:  employeeID,
			LeaveTypeID: leaveTypeID,
			AttemptedAt: l.now(),
		}
	}

	return l.mutate(ctx, employeeID, leaveTypeID, func(ent *Entitlement) (*Reservation, error) {
		ent.Reserved = ent.Reserved.Sub(res.Days)
		ent.Taken = ent.Taken.Add(res.Days)
		updated := *res
		updated.Status = ReservationCommitted
		updated.ResolvedAt = l.now()
		return &updated, nil
	})
}

// Release returns a reservation to the available pool. Idempotent:
// releasing a missing or already-resolved reservation is a no-op, so
// repeated rejection retries are safe.
func (l *Ledger) Release(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, requestID RequestID) error {
	unlock := l.locks.lock(entitlementKey(employeeID, leaveTypeID))
	defer unlock()

	res, err := l.store.GetReservation(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil
		}
		return err
	}
	if res.Status != ReservationOpen {
		return nil
	}

	return l.mutate(ctx, employeeID, leaveTypeID, func(ent *Entitlement) (*Reservation, error) {
		ent.Reserved = ent.Reserved.Sub(res.Days)
		updated := *res
		updated.Status = ReservationReleased
		updated.ResolvedAt = l.now()
		return &updated, nil
	})
}

// =============================================================================
// ACCRUAL & PERIOD RESET
// =============================================================================

// RunAccrual brings accruedRounded current as of the given date.
// Idempotent for a fixed asOf: a second call sees no elapsed time and
// changes nothing.
func (l *Ledger) RunAccrual(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, asOf time.Time) (*Entitlement, error) {
	policy, err := l.resolver.Resolve(ctx, leaveTypeID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(entitlementKey(employeeID, leaveTypeID))
	defer unlock()

	var applied *Entitlement
	err = l.mutate(ctx, employeeID, leaveTypeID, func(ent *Entitlement) (*Reservation, error) {
		result := ComputeAccrual(ent, policy, asOf)
		ent.AccruedRaw = result.NewAccruedRaw
		ent.AccruedRounded = result.NewAccruedRounded
		ent.LastAccrualDate = result.NewLastAccrualDate
		applied = ent
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// ResetPeriod closes out the period at periodEnd: taken is zeroed,
// accrual is cleared, and whatever remained unspent rolls into
// carryForward subject to the policy cap. Open reservations belong to
// unresolved requests and are carried into the new period unchanged
// rather than lost. Carry-forward older than the policy's expiry window
// is dropped before the roll.
func (l *Ledger) ResetPeriod(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, periodEnd time.Time) (*Entitlement, error) {
	policy, err := l.resolver.Resolve(ctx, leaveTypeID)
	if err != nil {
		return nil, err
	}

	unlock := l.locks.lock(entitlementKey(employeeID, leaveTypeID))
	defer unlock()

	var applied *Entitlement
	err = l.mutateWithCheck(ctx, employeeID, leaveTypeID, func(ent *Entitlement) (*Reservation, error) {
		if policy.ExpiryAfterMonths > 0 && !ent.CarryForwardEarnedAt.IsZero() {
			if wholeMonthsBetween(ent.CarryForwardEarnedAt, periodEnd) >= policy.ExpiryAfterMonths {
				ent.CarryForward = ZeroDays()
			}
		}

		remaining := ent.Available().Max(ZeroDays())
		carry := ZeroDays()
		if policy.CarryForwardAllowed {
			carry = policy.MaxCarryForward.Min(remaining)
		}

		ent.CarryForward = carry
		ent.CarryForwardEarnedAt = periodEnd
		ent.AccruedRaw = ZeroDays()
		ent.AccruedRounded = ZeroDays()
		ent.Taken = ZeroDays()
		ent.LastAccrualDate = periodEnd
		ent.NextResetDate = nextYearBoundary(periodEnd)
		applied = ent
		return nil, nil
	}, checkResetInvariant)
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// =============================================================================
// MUTATION LOOP
// =============================================================================

// mutate runs a read-modify-write cycle with bounded optimistic retries.
// The callback mutates the loaded entitlement in place and may return a
// reservation to persist in the same transaction.
func (l *Ledger) mutate(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, fn func(*Entitlement) (*Reservation, error)) error {
	return l.mutateWithCheck(ctx, employeeID, leaveTypeID, fn, checkLedgerInvariant)
}

func (l *Ledger) mutateWithCheck(ctx context.Context, employeeID EmployeeID, leaveTypeID LeaveTypeID, fn func(*Entitlement) (*Reservation, error), check func(*Entitlement) error) error {
	var lastErr error
	for attempt := 0; attempt < maxMutationRetries; attempt++ {
		ent, err := l.store.GetEntitlement(ctx, employeeID, leaveTypeID)
		if err != nil {
			return err
		}
		expected := ent.Version

		res, err := fn(ent)
		if err != nil {
			return err
		}
		if err := check(ent); err != nil {
			return err
		}

		if res != nil {
			err = l.store.UpdateEntitlementWithReservation(ctx, ent, expected, res)
		} else {
			err = l.store.UpdateEntitlement(ctx, ent, expected)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("entitlement %s/%s: retries exhausted: %w", employeeID, leaveTypeID, lastErr)
}

// checkLedgerInvariant rejects a mutation that would corrupt the ledger.
// Reaching this is a defect in the calling operation, not client input.
func checkLedgerInvariant(ent *Entitlement) error {
	if ent.Taken.IsNegative() || ent.Reserved.IsNegative() {
		return fmt.Errorf("ledger invariant violated: negative component for %s/%s (taken=%v reserved=%v)",
			ent.EmployeeID, ent.LeaveTypeID, ent.Taken.Value, ent.Reserved.Value)
	}
	total := ent.YearlyEntitlement.Add(ent.CarryForward).Add(ent.AccruedRounded)
	if ent.Taken.Add(ent.Reserved).GreaterThan(total) {
		return fmt.Errorf("ledger invariant violated: over-commitment for %s/%s (taken=%v reserved=%v total=%v)",
			ent.EmployeeID, ent.LeaveTypeID, ent.Taken.Value, ent.Reserved.Value, total.Value)
	}
	return nil
}

// checkResetInvariant is the reset-time variant. An open reservation
// carried across the boundary may exceed the fresh period's capacity
// until accrual catches up, so the over-commitment check does not
// apply; available stays negative and blocks new reserves meanwhile.
func checkResetInvariant(ent *Entitlement) error {
	if ent.Taken.IsNegative() || ent.Reserved.IsNegative() {
		return fmt.Errorf("ledger invariant violated: negative component for %s/%s (taken=%v reserved=%v)",
			ent.EmployeeID, ent.LeaveTypeID, ent.Taken.Value, ent.Reserved.Value)
	}
	return nil
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

// keyedMutex hands out one mutex per key. Entries are never evicted;
// the registry grows with the distinct keys the process sees
// (entitlement pairs, request ids), a few dozen bytes each.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func entitlementKey(employeeID EmployeeID, leaveTypeID LeaveTypeID) string {
	return string(employeeID) + "/" + string(leaveTypeID)
}

func nextYearBoundary(after time.Time) time.Time {
	return time.Date(after.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
}
