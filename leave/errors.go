/*
errors.go - Centralized error types for the leave domain

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Outer layers (HTTP handlers, stores) wrap these with extra context.

ERROR CATEGORIES:
  1. Not-found errors - Missing employees, policies, entitlements, requests
  2. Validation errors - Business rule violations at submission
  3. Ledger errors - Balance and reservation failures
  4. Transition errors - Illegal state machine moves

USAGE:
  Callers classify with errors.Is():

    if errors.Is(err, leave.ErrInsufficientBalance) {
        return respondConflict(w, err)
    }

SEE ALSO:
  - ledger.go: Raises balance and reservation errors
  - request.go: Raises validation and transition errors
*/
package leave

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrPolicyNotFound is returned when a leave type has no policy.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrEntitlementNotFound is returned when no entitlement has been
	// assigned for the (employee, leave type) pair.
	ErrEntitlementNotFound = errors.New("entitlement not found")

	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("leave request not found")

	// ErrInsufficientBalance is returned when a reservation exceeds the
	// available balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidTransition is returned when a decision is attempted from a
	// state that does not permit it, or on an already-terminal request.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrReservationNotFound is returned when commit is invoked without a
	// matching open reservation. This indicates a programming or replay
	// defect and should be loud.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrValidation is returned when a submission violates a policy rule
	// (duration, attachment, tenure).
	ErrValidation = errors.New("validation failed")

	// ErrConcurrencyConflict is returned when optimistic retries on an
	// entitlement mutation are exhausted. Transient; safe to retry.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	Available   Days
	Requested   Days
	Shortfall   Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: requested %v, available %v, shortfall %v",
		e.Requested.Value, e.Available.Value, e.Shortfall.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// InvalidTransitionError names the illegal move that was attempted.
type InvalidTransitionError struct {
	RequestID RequestID
	From      RequestState
	Attempted string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: cannot %s request %s in state %s",
		e.Attempted, e.RequestID, e.From)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ValidationError pinpoints the field and rule that failed at submission.
type ValidationError struct {
	Field   string
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s (%s)", e.Message, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ReservationNotFoundError identifies the missing reservation.
type ReservationNotFoundError struct {
	RequestID   RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID
	AttemptedAt time.Time
}

func (e *ReservationNotFoundError) Error() string {
	return fmt.Sprintf("reservation not found: no open reservation for request %s (%s/%s)",
		e.RequestID, e.EmployeeID, e.LeaveTypeID)
}

func (e *ReservationNotFoundError) Unwrap() error {
	return ErrReservationNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrEntitlementNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
