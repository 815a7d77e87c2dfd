/*
handlers.go - HTTP API handlers for the leave management system

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                      List all employees
    POST   /api/employees                      Create employee
    GET    /api/employees/{id}                 Get employee details
    GET    /api/employees/{id}/balance         Get balance for one leave type
    GET    /api/employees/{id}/leave-requests  List employee's requests
    POST   /api/employees/{id}/leave-requests  Submit a leave request

  Requests:
    GET    /api/leave-requests/{id}                   Get a request
    PUT    /api/leave-requests/{id}                   Amend (PENDING only)
    DELETE /api/leave-requests/{id}                   Delete (PENDING only)
    POST   /api/leave-requests/{id}/manager-decision  First-stage decision
    POST   /api/leave-requests/{id}/hr-decision       Final decision
    POST   /api/leave-requests/{id}/cancel            Cancel (PENDING only)

  Policies & calendar:
    GET/POST       /api/leave-types          Policy definitions (JSON)
    GET/DELETE     /api/leave-types/{id}
    GET/POST       /api/holidays
    DELETE         /api/holidays

  Admin:
    POST   /api/admin/entitlements    Assign an entitlement
    POST   /api/admin/accrual         Run accrual for one entitlement
    POST   /api/admin/reset-period    Close out a period

ERROR HANDLING:
  Domain errors map to HTTP status via their kind:
  - 400: validation failures
  - 404: missing employee/policy/entitlement/request
  - 409: insufficient balance, illegal state transition
  - 503: concurrency conflict (retryable)
  - 500: everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlashr/leave-engine/factory"
	"github.com/atlashr/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Storage is the persistence surface the handlers use directly, beyond
// what the ledger and request service already own. Both the SQLite and
// the in-memory store satisfy it.
type Storage interface {
	leave.PolicyStore
	GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error)
	SaveEmployee(ctx context.Context, emp *leave.Employee) error
	ListEmployees(ctx context.Context) ([]*leave.Employee, error)
	DeleteEmployee(ctx context.Context, id leave.EmployeeID) error
	SaveHoliday(ctx context.Context, h leave.Holiday) error
	DeleteHoliday(ctx context.Context, date time.Time, name string) error
	ListHolidays(ctx context.Context, year int) ([]leave.Holiday, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         Storage
	Ledger        *leave.Ledger
	Requests      *leave.RequestService
	Resolver      *leave.CachedResolver
	PolicyFactory *factory.PolicyFactory
}

// NewHandler creates a new handler wired to the given collaborators.
func NewHandler(store Storage, ledger *leave.Ledger, requests *leave.RequestService, resolver *leave.CachedResolver) *Handler {
	return &Handler{
		Store:         store,
		Ledger:        ledger,
		Requests:      requests,
		Resolver:      resolver,
		PolicyFactory: factory.NewPolicyFactory(),
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates a new employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	hiredAt, err := time.Parse("2006-01-02", req.HiredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hired_at format (use YYYY-MM-DD)", err)
		return
	}

	emp := &leave.Employee{
		ID:      leave.EmployeeID(req.ID),
		Name:    req.Name,
		Email:   req.Email,
		HiredAt: hiredAt,
		Active:  true,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// DeleteEmployee removes an employee record.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := leave.EmployeeID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteEmployee(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the balance for one employee/leave-type pair.
// GET /api/employees/{id}/balance?leave_type=annual
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := leave.EmployeeID(chi.URLParam(r, "id"))
	leaveTypeID := leave.LeaveTypeID(r.URL.Query().Get("leave_type"))
	if leaveTypeID == "" {
		writeError(w, http.StatusBadRequest, "Missing leave_type query parameter", nil)
		return
	}

	balance, err := h.Ledger.GetBalance(r.Context(), employeeID, leaveTypeID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================

// SubmitLeave submits a leave request for an employee.
// POST /api/employees/{id}/leave-requests
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	employeeID := leave.EmployeeID(chi.URLParam(r, "id"))

	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fromDate, toDate, err := parseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	request, err := h.Requests.Submit(r.Context(), leave.SubmitInput{
		EmployeeID:    employeeID,
		LeaveTypeID:   leave.LeaveTypeID(req.LeaveTypeID),
		FromDate:      fromDate,
		ToDate:        toDate,
		DurationDays:  leave.NewDays(req.DurationDays),
		Justification: req.Justification,
		AttachmentID:  req.AttachmentID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(request))
}

// GetLeaveRequest returns one request.
func (h *Handler) GetLeaveRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	request, err := h.Requests.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(request))
}

// ListEmployeeLeaveRequests returns all requests of one employee.
func (h *Handler) ListEmployeeLeaveRequests(w http.ResponseWriter, r *http.Request) {
	employeeID := leave.EmployeeID(chi.URLParam(r, "id"))

	requests, err := h.Requests.ListByEmployee(r.Context(), employeeID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(requests))
}

// ManagerDecision records the first-stage decision on a request.
// POST /api/leave-requests/{id}/manager-decision
func (h *Handler) ManagerDecision(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	request, err := h.Requests.DecideAsManager(r.Context(), id, req.ActorID, leave.Decision(req.Decision), req.Comment)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(request))
}

// HRDecision records the final decision on a request.
// POST /api/leave-requests/{id}/hr-decision
func (h *Handler) HRDecision(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	request, err := h.Requests.DecideAsHR(r.Context(), id, req.ActorID, leave.Decision(req.Decision), req.Comment)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(request))
}

// CancelLeaveRequest cancels a PENDING request.
// POST /api/leave-requests/{id}/cancel
func (h *Handler) CancelLeaveRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	if err := h.Requests.Cancel(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AmendLeave amends a PENDING request.
// PUT /api/leave-requests/{id}
func (h *Handler) AmendLeave(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	var req AmendLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fromDate, toDate, err := parseDateRange(req.FromDate, req.ToDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	request, err := h.Requests.Amend(r.Context(), id, leave.AmendInput{
		FromDate:      fromDate,
		ToDate:        toDate,
		DurationDays:  leave.NewDays(req.DurationDays),
		Justification: req.Justification,
		AttachmentID:  req.AttachmentID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(request))
}

// DeleteLeaveRequest deletes a PENDING request.
// DELETE /api/leave-requests/{id}
func (h *Handler) DeleteLeaveRequest(w http.ResponseWriter, r *http.Request) {
	id := leave.RequestID(chi.URLParam(r, "id"))

	if err := h.Requests.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all leave-type policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListPolicies(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = PolicyDTO{Config: h.PolicyFactory.ToJSON(p)}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPolicy returns one leave-type policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := leave.LeaveTypeID(chi.URLParam(r, "id"))

	policy, err := h.Store.GetPolicy(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyDTO{Config: h.PolicyFactory.ToJSON(policy)})
}

// CreatePolicy creates or replaces a leave-type policy.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	policy, err := h.PolicyFactory.FromJSON(req.Config)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.Store.SavePolicy(r.Context(), policy); err != nil {
		respondError(w, err)
		return
	}
	h.Resolver.Invalidate(policy.LeaveTypeID)

	writeJSON(w, http.StatusCreated, PolicyDTO{Config: h.PolicyFactory.ToJSON(policy)})
}

// DeletePolicy removes a leave-type policy.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	id := leave.LeaveTypeID(chi.URLParam(r, "id"))

	if err := h.Store.DeletePolicy(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	h.Resolver.Invalidate(id)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns the calendar for one year (default: current).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := time.Now().Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := time.Parse("2006", y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed.Year()
	}

	holidays, err := h.Store.ListHolidays(r.Context(), year)
	if err != nil {
		respondError(w, err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{Date: hol.Date.Format("2006-01-02"), Name: hol.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a calendar entry.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.SaveHoliday(r.Context(), leave.Holiday{Date: date, Name: req.Name}); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteHoliday removes a calendar entry.
// DELETE /api/holidays?date=YYYY-MM-DD&name=...
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.DeleteHoliday(r.Context(), date, r.URL.Query().Get("name")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// AssignEntitlement creates an entitlement for an employee/leave-type.
// POST /api/admin/entitlements
func (h *Handler) AssignEntitlement(w http.ResponseWriter, r *http.Request) {
	var req AssignEntitlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	periodStart, err := time.Parse("2006-01-02", req.PeriodStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_start format (use YYYY-MM-DD)", err)
		return
	}

	ent, err := h.Ledger.Assign(r.Context(),
		leave.EmployeeID(req.EmployeeID), leave.LeaveTypeID(req.LeaveTypeID),
		leave.NewDays(req.YearlyDays), periodStart)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(ent.Balance()))
}

// RunAccrual triggers accrual for one entitlement.
// POST /api/admin/accrual
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req RunAccrualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	asOf, err := time.Parse("2006-01-02", req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	ent, err := h.Ledger.RunAccrual(r.Context(),
		leave.EmployeeID(req.EmployeeID), leave.LeaveTypeID(req.LeaveTypeID), asOf)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(ent.Balance()))
}

// ResetPeriod closes out the period for one entitlement.
// POST /api/admin/reset-period
func (h *Handler) ResetPeriod(w http.ResponseWriter, r *http.Request) {
	var req ResetPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	periodEnd, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period_end format (use YYYY-MM-DD)", err)
		return
	}

	ent, err := h.Ledger.ResetPeriod(r.Context(),
		leave.EmployeeID(req.EmployeeID), leave.LeaveTypeID(req.LeaveTypeID), periodEnd)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(ent.Balance()))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func parseDateRange(from, to string) (time.Time, time.Time, error) {
	fromDate, err := time.Parse("2006-01-02", from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	toDate, err := time.Parse("2006-01-02", to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return fromDate, toDate, nil
}

// respondError maps a domain error to HTTP status and body.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leave.ErrValidation):
		writeErrorCode(w, http.StatusBadRequest, "validation_error", err)
	case leave.IsNotFound(err):
		writeErrorCode(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, leave.ErrInsufficientBalance):
		writeErrorCode(w, http.StatusConflict, "insufficient_balance", err)
	case errors.Is(err, leave.ErrInvalidTransition):
		writeErrorCode(w, http.StatusConflict, "invalid_state_transition", err)
	case errors.Is(err, leave.ErrReservationNotFound):
		writeErrorCode(w, http.StatusConflict, "reservation_not_found", err)
	case leave.IsRetryable(err):
		writeErrorCode(w, http.StatusServiceUnavailable, "concurrency_conflict", err)
	default:
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", err)
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
