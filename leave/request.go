/*
request.go - Leave request lifecycle

PURPOSE:
  Drives a leave request from submission through the two-stage decision
  chain, invoking the ledger at exactly the right transitions.

REQUEST FLOW:
  ┌────────────────────────────────────────────────────────────────┐
  │                                                                │
  │   Submit ──▶ PENDING ──▶ MANAGER_APPROVED ──▶ HR_APPROVED      │
  │    (reserve)    │              │      (commit: reserved→taken) │
  │                 │              │                               │
  │                 │              └─────────────▶ HR_REJECTED     │
  │                 │                              (release)       │
  │                 ├────────────▶ MANAGER_REJECTED                │
  │                 │              (release)                       │
  │                 └────────────▶ CANCELLED                       │
  │                                (release)                       │
  │                                                                │
  └────────────────────────────────────────────────────────────────┘

LEDGER EFFECTS:
  Balance is reserved at submission, stays reserved through manager
  approval, and only becomes consumption at final HR approval. Any
  rejection or cancellation releases the full reservation, including
  a rejection after the manager already approved.

IDEMPOTENCY:
  Replaying a decision (same request, same verdict) is a no-op. The
  ledger's reservation records make the underlying balance moves
  single-shot per request id as well.

CONCURRENCY:
  Every transition serializes per request id through a keyed mutex, so
  two conflicting decisions on one request cannot interleave between
  the state check and the write. The ledger adds its own
  per-(employee, leave type) serialization underneath; request locks
  are always taken first, ledger locks second.

SEE ALSO:
  - ledger.go: Reserve/Commit/Release invoked by transitions
  - policy.go: Submission rules enforced here
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// REQUEST STATES & DECISIONS
// =============================================================================

type RequestState string

const (
	StatePending         RequestState = "PENDING"
	StateManagerApproved RequestState = "MANAGER_APPROVED"
	StateManagerRejected RequestState = "MANAGER_REJECTED"
	StateHRApproved      RequestState = "HR_APPROVED"
	StateHRRejected      RequestState = "HR_REJECTED"
	StateCancelled       RequestState = "CANCELLED"
)

// Terminal reports whether the state permits no further transitions.
func (s RequestState) Terminal() bool {
	switch s {
	case StateManagerRejected, StateHRApproved, StateHRRejected, StateCancelled:
		return true
	}
	return false
}

type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// DecisionRecord captures who decided, when, and why.
type DecisionRecord struct {
	ActorID   string
	Decision  Decision
	Comment   string
	DecidedAt time.Time
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveRequest struct {
	ID          RequestID
	EmployeeID  EmployeeID
	LeaveTypeID LeaveTypeID

	FromDate     time.Time
	ToDate       time.Time
	DurationDays Days

	Justification string
	AttachmentID  string

	State           RequestState
	ManagerDecision *DecisionRecord
	HRDecision      *DecisionRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// RequestStore persists leave requests.
type RequestStore interface {
	GetRequest(ctx context.Context, id RequestID) (*LeaveRequest, error)
	CreateRequest(ctx context.Context, r *LeaveRequest) error
	UpdateRequest(ctx context.Context, r *LeaveRequest) error
	DeleteRequest(ctx context.Context, id RequestID) error
	ListRequestsByEmployee(ctx context.Context, employeeID EmployeeID) ([]*LeaveRequest, error)
	ListRequestsByState(ctx context.Context, state RequestState) ([]*LeaveRequest, error)
}

// EmployeeDirectory is the existence and tenure check against the
// employee registry.
type EmployeeDirectory interface {
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
}

// AttachmentChecker verifies an attachment reference points at a stored
// file. Storage itself is external.
type AttachmentChecker interface {
	AttachmentExists(ctx context.Context, attachmentID string) (bool, error)
}

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	Requests    RequestStore
	Employees   EmployeeDirectory
	Attachments AttachmentChecker // optional; nil skips existence checks
	Resolver    PolicyResolver
	Ledger      *Ledger

	now   func() time.Time
	newID func() RequestID
	locks keyedMutex
}

func NewRequestService(requests RequestStore, employees EmployeeDirectory, resolver PolicyResolver, ledger *Ledger) *RequestService {
	return &RequestService{
		Requests:  requests,
		Employees: employees,
		Resolver:  resolver,
		Ledger:    ledger,
		now:       time.Now,
		newID:     func() RequestID { return RequestID(uuid.NewString()) },
	}
}

// WithClock overrides the time source. Test hook.
func (s *RequestService) WithClock(now func() time.Time) *RequestService {
	s.now = now
	return s
}

// WithIDGenerator overrides request id generation. Test hook.
func (s *RequestService) WithIDGenerator(gen func() RequestID) *RequestService {
	s.newID = gen
	return s
}

// SubmitInput carries everything a submission needs.
type SubmitInput struct {
	EmployeeID    EmployeeID
	LeaveTypeID   LeaveTypeID
	FromDate      time.Time
	ToDate        time.Time
	DurationDays  Days
	Justification string
	AttachmentID  string
}

// Submit validates the request against its policy, reserves balance,
// and persists the request in PENDING. On any failure no request exists
// and no balance is held.
func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (*LeaveRequest, error) {
	employee, err := s.Employees.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	policy, err := s.Resolver.Resolve(ctx, in.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	if err := s.validateSubmission(ctx, employee, policy, in); err != nil {
		return nil, err
	}

	now := s.now()
	request := &LeaveRequest{
		ID:            s.newID(),
		EmployeeID:    in.EmployeeID,
		LeaveTypeID:   in.LeaveTypeID,
		FromDate:      in.FromDate,
		ToDate:        in.ToDate,
		DurationDays:  in.DurationDays,
		Justification: in.Justification,
		AttachmentID:  in.AttachmentID,
		State:         StatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.Ledger.Reserve(ctx, in.EmployeeID, in.LeaveTypeID, in.DurationDays, request.ID); err != nil {
		return nil, err
	}
	if err := s.Requests.CreateRequest(ctx, request); err != nil {
		// Undo the hold so a failed persist cannot strand balance.
		if relErr := s.Ledger.Release(ctx, in.EmployeeID, in.LeaveTypeID, request.ID); relErr != nil {
			return nil, fmt.Errorf("persist request: %v (release failed: %w)", err, relErr)
		}
		return nil, fmt.Errorf("persist request: %w", err)
	}
	return request, nil
}

func (s *RequestService) validateSubmission(ctx context.Context, employee *Employee, policy *Policy, in SubmitInput) error {
	if !in.DurationDays.IsPositive() {
		return &ValidationError{Field: "durationDays", Rule: "positive",
			Message: "duration must be positive"}
	}
	if in.ToDate.Before(in.FromDate) {
		return &ValidationError{Field: "toDate", Rule: "date_order",
			Message: "end date precedes start date"}
	}
	if in.DurationDays.LessThan(policy.MinRequestDays) {
		return &ValidationError{Field: "durationDays", Rule: "min_request_days",
			Message: fmt.Sprintf("duration %v is below the minimum of %v days", in.DurationDays.Value, policy.MinRequestDays.Value)}
	}
	if policy.MaxConsecutiveDays.IsPositive() && in.DurationDays.GreaterThan(policy.MaxConsecutiveDays) {
		return &ValidationError{Field: "durationDays", Rule: "max_consecutive_days",
			Message: fmt.Sprintf("duration %v exceeds the maximum of %v consecutive days", in.DurationDays.Value, policy.MaxConsecutiveDays.Value)}
	}
	if policy.MinTenureMonths > 0 && employee.TenureMonths(s.now()) < policy.MinTenureMonths {
		return &ValidationError{Field: "employeeId", Rule: "min_tenure",
			Message: fmt.Sprintf("requires %d months of tenure", policy.MinTenureMonths)}
	}
	if policy.RequiresAttachment {
		if in.AttachmentID == "" {
			return &ValidationError{Field: "attachmentId", Rule: "required",
				Message: "this leave type requires a supporting attachment"}
		}
		if s.Attachments != nil {
			ok, err := s.Attachments.AttachmentExists(ctx, in.AttachmentID)
			if err != nil {
				return fmt.Errorf("check attachment: %w", err)
			}
			if !ok {
				return &ValidationError{Field: "attachmentId", Rule: "exists",
					Message: fmt.Sprintf("attachment %q does not exist", in.AttachmentID)}
			}
		}
	}
	return nil
}

// DecideAsManager records the first-stage decision. Legal from PENDING
// only. Rejection releases the reservation; approval keeps it held for
// the HR stage. Replaying an identical decision is a no-op.
func (s *RequestService) DecideAsManager(ctx context.Context, requestID RequestID, approverID string, decision Decision, comment string) (*LeaveRequest, error) {
	if !decision.Valid() {
		return nil, &ValidationError{Field: "decision", Rule: "enum",
			Message: fmt.Sprintf("unknown decision %q", decision)}
	}

	unlock := s.locks.lock(string(requestID))
	defer unlock()

	request, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if replayed(request.ManagerDecision, decision, request.State, StateManagerApproved, StateManagerRejected) {
		return request, nil
	}
	if request.State != StatePending {
		return nil, &InvalidTransitionError{RequestID: requestID, From: request.State, Attempted: "manager-decide"}
	}

	now := s.now()
	record := &DecisionRecord{ActorID: approverID, Decision: decision, Comment: comment, DecidedAt: now}

	if decision == DecisionReject {
		if err := s.Ledger.Release(ctx, request.EmployeeID, request.LeaveTypeID, request.ID); err != nil {
			return nil, err
		}
		request.State = StateManagerRejected
	} else {
		request.State = StateManagerApproved
	}
	request.ManagerDecision = record
	request.UpdatedAt = now

	if err := s.Requests.UpdateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("persist manager decision: %w", err)
	}
	return request, nil
}

// DecideAsHR records the final decision. Legal from MANAGER_APPROVED
// only. Approval commits the reservation into taken balance; rejection
// releases it, restoring the balance the manager stage had held.
// Replaying an identical decision is a no-op.
func (s *RequestService) DecideAsHR(ctx context.Context, requestID RequestID, reviewerID string, decision Decision, comment string) (*LeaveRequest, error) {
	if !decision.Valid() {
		return nil, &ValidationError{Field: "decision", Rule: "enum",
			Message: fmt.Sprintf("unknown decision %q", decision)}
	}

	unlock := s.locks.lock(string(requestID))
	defer unlock()

	request, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if replayed(request.HRDecision, decision, request.State, StateHRApproved, StateHRRejected) {
		return request, nil
	}
	if request.State != StateManagerApproved {
		return nil, &InvalidTransitionError{RequestID: requestID, From: request.State, Attempted: "hr-decide"}
	}

	now := s.now()
	record := &DecisionRecord{ActorID: reviewerID, Decision: decision, Comment: comment, DecidedAt: now}

	if decision == DecisionApprove {
		if err := s.Ledger.Commit(ctx, request.EmployeeID, request.LeaveTypeID, request.ID); err != nil {
			return nil, err
		}
		request.State = StateHRApproved
	} else {
		if err := s.Ledger.Release(ctx, request.EmployeeID, request.LeaveTypeID, request.ID); err != nil {
			return nil, err
		}
		request.State = StateHRRejected
	}
	request.HRDecision = record
	request.UpdatedAt = now

	if err := s.Requests.UpdateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("persist hr decision: %w", err)
	}
	return request, nil
}

// Cancel withdraws a PENDING request and releases its reservation.
// Cancelling an already-cancelled request is a no-op.
func (s *RequestService) Cancel(ctx context.Context, requestID RequestID) error {
	unlock := s.locks.lock(string(requestID))
	defer unlock()

	request, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.State == StateCancelled {
		return nil
	}
	if request.State != StatePending {
		return &InvalidTransitionError{RequestID: requestID, From: request.State, Attempted: "cancel"}
	}

	if err := s.Ledger.Release(ctx, request.EmployeeID, request.LeaveTypeID, request.ID); err != nil {
		return err
	}
	request.State = StateCancelled
	request.UpdatedAt = s.now()
	if err := s.Requests.UpdateRequest(ctx, request); err != nil {
		return fmt.Errorf("persist cancellation: %w", err)
	}
	return nil
}

// AmendInput carries the fields an employee may change while PENDING.
type AmendInput struct {
	FromDate      time.Time
	ToDate        time.Time
	DurationDays  Days
	Justification string
	AttachmentID  string
}

// Amend updates a PENDING request. The old reservation is released and
// the new duration reserved before the request row changes, so the
// ledger always reflects the current commitment.
func (s *RequestService) Amend(ctx context.Context, requestID RequestID, in AmendInput) (*LeaveRequest, error) {
	unlock := s.locks.lock(string(requestID))
	defer unlock()

	request, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.State != StatePending {
		return nil, &InvalidTransitionError{RequestID: requestID, From: request.State, Attempted: "amend"}
	}

	employee, err := s.Employees.GetEmployee(ctx, request.EmployeeID)
	if err != nil {
		return nil, err
	}
	policy, err := s.Resolver.Resolve(ctx, request.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	if err := s.validateSubmission(ctx, employee, policy, SubmitInput{
		EmployeeID:   request.EmployeeID,
		LeaveTypeID:  request.LeaveTypeID,
		FromDate:     in.FromDate,
		ToDate:       in.ToDate,
		DurationDays: in.DurationDays,
		AttachmentID: in.AttachmentID,
	}); err != nil {
		return nil, err
	}

	if err := s.Ledger.Release(ctx, request.EmployeeID, request.LeaveTypeID, request.ID); err != nil {
		return nil, err
	}
	if err := s.Ledger.Reserve(ctx, request.EmployeeID, request.LeaveTypeID, in.DurationDays, request.ID); err != nil {
		// Reinstate the original hold so a rejected amendment leaves the
		// request exactly as it was.
		if reErr := s.Ledger.Reserve(ctx, request.EmployeeID, request.LeaveTypeID, request.DurationDays, request.ID); reErr != nil {
			return nil, fmt.Errorf("amend reservation: %v (restore failed: %w)", err, reErr)
		}
		return nil, err
	}

	request.FromDate = in.FromDate
	request.ToDate = in.ToDate
	request.DurationDays = in.DurationDays
	request.Justification = in.Justification
	request.AttachmentID = in.AttachmentID
	request.UpdatedAt = s.now()

	if err := s.Requests.UpdateRequest(ctx, request); err != nil {
		return nil, fmt.Errorf("persist amendment: %w", err)
	}
	return request, nil
}

// Delete removes a PENDING request entirely, releasing its reservation.
func (s *RequestService) Delete(ctx context.Context, requestID RequestID) error {
	unlock := s.locks.lock(string(requestID))
	defer unlock()

	request, err := s.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.State != StatePending {
		return &InvalidTransitionError{RequestID: requestID, From: request.State, Attempted: "delete"}
	}

	if err := s.Ledger.Release(ctx, request.EmployeeID, request.LeaveTypeID, request.ID); err != nil {
		return err
	}
	if err := s.Requests.DeleteRequest(ctx, requestID); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	return nil
}

// Get returns a request by id.
func (s *RequestService) Get(ctx context.Context, requestID RequestID) (*LeaveRequest, error) {
	return s.Requests.GetRequest(ctx, requestID)
}

// ListByEmployee returns all requests for one employee.
func (s *RequestService) ListByEmployee(ctx context.Context, employeeID EmployeeID) ([]*LeaveRequest, error) {
	return s.Requests.ListRequestsByEmployee(ctx, employeeID)
}

// replayed reports whether this exact decision was already applied, in
// which case the transition is a no-op rather than an error.
func replayed(prior *DecisionRecord, decision Decision, state, approvedState, rejectedState RequestState) bool {
	if prior == nil || prior.Decision != decision {
		return false
	}
	if decision == DecisionApprove {
		// A manager approval followed by an HR decision moves the state
		// past approvedState; the replay is still the same decision.
		return state == approvedState || state == StateHRApproved || state == StateHRRejected
	}
	return state == rejectedState
}
