/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and in the domain, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/atlashr/leave-engine/factory"
	"github.com/atlashr/leave-engine/leave"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	HiredAt string `json:"hired_at"`
	Active  bool   `json:"active"`
}

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	HiredAt string `json:"hired_at"`
}

// PolicyDTO wraps the factory JSON shape for API responses.
type PolicyDTO struct {
	Config factory.PolicyJSON `json:"config"`
}

// CreatePolicyRequest is the request to create or replace a policy.
type CreatePolicyRequest struct {
	Config factory.PolicyJSON `json:"config"`
}

// BalanceDTO represents one entitlement's balance breakdown.
type BalanceDTO struct {
	EmployeeID        string  `json:"employee_id"`
	LeaveTypeID       string  `json:"leave_type_id"`
	YearlyEntitlement float64 `json:"yearly_entitlement"`
	CarryForward      float64 `json:"carry_forward"`
	AccruedRounded    float64 `json:"accrued_rounded"`
	Taken             float64 `json:"taken"`
	Reserved          float64 `json:"reserved"`
	Available         float64 `json:"available"`
}

// SubmitLeaveRequest is the request body for a submission.
type SubmitLeaveRequest struct {
	LeaveTypeID   string  `json:"leave_type_id"`
	FromDate      string  `json:"from_date"` // YYYY-MM-DD
	ToDate        string  `json:"to_date"`   // YYYY-MM-DD
	DurationDays  float64 `json:"duration_days"`
	Justification string  `json:"justification,omitempty"`
	AttachmentID  string  `json:"attachment_id,omitempty"`
}

// AmendLeaveRequest is the request body for amending a PENDING request.
type AmendLeaveRequest struct {
	FromDate      string  `json:"from_date"`
	ToDate        string  `json:"to_date"`
	DurationDays  float64 `json:"duration_days"`
	Justification string  `json:"justification,omitempty"`
	AttachmentID  string  `json:"attachment_id,omitempty"`
}

// DecisionRequest is the body for manager and HR decisions.
type DecisionRequest struct {
	ActorID  string `json:"actor_id"`
	Decision string `json:"decision"` // APPROVE or REJECT
	Comment  string `json:"comment,omitempty"`
}

// DecisionDTO is a recorded decision in responses.
type DecisionDTO struct {
	ActorID   string `json:"actor_id"`
	Decision  string `json:"decision"`
	Comment   string `json:"comment,omitempty"`
	DecidedAt string `json:"decided_at"`
}

// LeaveRequestDTO represents a leave request in API responses.
type LeaveRequestDTO struct {
	ID              string       `json:"id"`
	EmployeeID      string       `json:"employee_id"`
	LeaveTypeID     string       `json:"leave_type_id"`
	FromDate        string       `json:"from_date"`
	ToDate          string       `json:"to_date"`
	DurationDays    float64      `json:"duration_days"`
	Justification   string       `json:"justification,omitempty"`
	AttachmentID    string       `json:"attachment_id,omitempty"`
	State           string       `json:"state"`
	ManagerDecision *DecisionDTO `json:"manager_decision,omitempty"`
	HRDecision      *DecisionDTO `json:"hr_decision,omitempty"`
	CreatedAt       string       `json:"created_at"`
	UpdatedAt       string       `json:"updated_at"`
}

// AssignEntitlementRequest creates an entitlement for an employee.
type AssignEntitlementRequest struct {
	EmployeeID  string  `json:"employee_id"`
	LeaveTypeID string  `json:"leave_type_id"`
	YearlyDays  float64 `json:"yearly_days"`
	PeriodStart string  `json:"period_start"` // YYYY-MM-DD
}

// RunAccrualRequest triggers accrual for one entitlement.
type RunAccrualRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	AsOf        string `json:"as_of"` // YYYY-MM-DD
}

// ResetPeriodRequest closes out the period for one entitlement.
type ResetPeriodRequest struct {
	EmployeeID  string `json:"employee_id"`
	LeaveTypeID string `json:"leave_type_id"`
	PeriodEnd   string `json:"period_end"` // YYYY-MM-DD
}

// HolidayDTO represents a calendar entry.
type HolidayDTO struct {
	Date string `json:"date"` // YYYY-MM-DD
	Name string `json:"name"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e *leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:      string(e.ID),
		Name:    e.Name,
		Email:   e.Email,
		HiredAt: e.HiredAt.Format("2006-01-02"),
		Active:  e.Active,
	}
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	return BalanceDTO{
		EmployeeID:        string(b.EmployeeID),
		LeaveTypeID:       string(b.LeaveTypeID),
		YearlyEntitlement: b.YearlyEntitlement.Float64(),
		CarryForward:      b.CarryForward.Float64(),
		AccruedRounded:    b.AccruedRounded.Float64(),
		Taken:             b.Taken.Float64(),
		Reserved:          b.Reserved.Float64(),
		Available:         b.Available.Float64(),
	}
}

func toDecisionDTO(d *leave.DecisionRecord) *DecisionDTO {
	if d == nil {
		return nil
	}
	return &DecisionDTO{
		ActorID:   d.ActorID,
		Decision:  string(d.Decision),
		Comment:   d.Comment,
		DecidedAt: d.DecidedAt.Format(time.RFC3339),
	}
}

func toLeaveRequestDTO(r *leave.LeaveRequest) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:              string(r.ID),
		EmployeeID:      string(r.EmployeeID),
		LeaveTypeID:     string(r.LeaveTypeID),
		FromDate:        r.FromDate.Format("2006-01-02"),
		ToDate:          r.ToDate.Format("2006-01-02"),
		DurationDays:    r.DurationDays.Float64(),
		Justification:   r.Justification,
		AttachmentID:    r.AttachmentID,
		State:           string(r.State),
		ManagerDecision: toDecisionDTO(r.ManagerDecision),
		HRDecision:      toDecisionDTO(r.HRDecision),
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
}

func toLeaveRequestDTOs(requests []*leave.LeaveRequest) []LeaveRequestDTO {
	dtos := make([]LeaveRequestDTO, len(requests))
	for i, r := range requests {
		dtos[i] = toLeaveRequestDTO(r)
	}
	return dtos
}
