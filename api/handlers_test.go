/*
handlers_test.go - HTTP-level tests for the API

Tests the full request path through the chi router: JSON decoding,
handler wiring, domain calls, and the error-to-status mapping.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlashr/leave-engine/factory"
	"github.com/atlashr/leave-engine/leave"
	"github.com/atlashr/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) (http.Handler, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver := leave.NewCachedResolver(store)
	ledger := leave.NewLedger(store, resolver)
	requests := leave.NewRequestService(store, store, resolver, ledger)
	handler := NewHandler(store, ledger, requests, resolver)

	return NewRouter(handler, []string{"http://localhost:8080"}), store
}

func seedEmployee(t *testing.T, store *sqlite.Store, id string) {
	t.Helper()
	require.NoError(t, store.SaveEmployee(context.Background(), &leave.Employee{
		ID:      leave.EmployeeID(id),
		Name:    "Test User",
		Email:   id + "@example.com",
		HiredAt: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Active:  true,
	}))
}

func seedAnnualPolicy(t *testing.T, store *sqlite.Store) {
	t.Helper()
	pf := factory.NewPolicyFactory()
	policy, err := pf.ParsePolicy(factory.AnnualLeaveJSON("annual", "Annual Leave", 1.75, 5))
	require.NoError(t, err)
	require.NoError(t, store.SavePolicy(context.Background(), policy))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func assignBalance(t *testing.T, router http.Handler, emp string, days float64) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/admin/entitlements", AssignEntitlementRequest{
		EmployeeID:  emp,
		LeaveTypeID: "annual",
		YearlyDays:  days,
		PeriodStart: "2025-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// EMPLOYEE & BALANCE ENDPOINTS
// =============================================================================

func TestAPI_CreateAndGetEmployee(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/employees", CreateEmployeeRequest{
		ID: "emp-1", Name: "Ada Example", Email: "ada@example.com", HiredAt: "2024-01-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	emp := decode[EmployeeDTO](t, rec)
	assert.Equal(t, "Ada Example", emp.Name)
	assert.Equal(t, "2024-01-01", emp.HiredAt)
}

func TestAPI_GetEmployee_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/employees/emp-ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "not_found", errResp.Code)
}

func TestAPI_GetBalance(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 20)

	rec := doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance?leave_type=annual", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bal := decode[BalanceDTO](t, rec)
	assert.Equal(t, 20.0, bal.YearlyEntitlement)
	assert.Equal(t, 20.0, bal.Available)
}

func TestAPI_GetBalance_MissingLeaveType(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")

	rec := doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// REQUEST LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_LeaveRequestLifecycle(t *testing.T) {
	// GIVEN: An employee with 20 days
	// WHEN: Submitting, manager approving, HR approving over HTTP
	// THEN: Each step returns the new state; the final balance shows 5 taken

	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 20)

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/leave-requests", SubmitLeaveRequest{
		LeaveTypeID:   "annual",
		FromDate:      "2025-07-07",
		ToDate:        "2025-07-11",
		DurationDays:  5,
		Justification: "summer break",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[LeaveRequestDTO](t, rec)
	assert.Equal(t, "PENDING", created.State)

	rec = doJSON(t, router, http.MethodPost, "/api/leave-requests/"+created.ID+"/manager-decision", DecisionRequest{
		ActorID: "mgr-1", Decision: "APPROVE", Comment: "have fun",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MANAGER_APPROVED", decode[LeaveRequestDTO](t, rec).State)

	rec = doJSON(t, router, http.MethodPost, "/api/leave-requests/"+created.ID+"/hr-decision", DecisionRequest{
		ActorID: "hr-1", Decision: "APPROVE",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	final := decode[LeaveRequestDTO](t, rec)
	assert.Equal(t, "HR_APPROVED", final.State)
	require.NotNil(t, final.ManagerDecision)
	assert.Equal(t, "mgr-1", final.ManagerDecision.ActorID)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance?leave_type=annual", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decode[BalanceDTO](t, rec)
	assert.Equal(t, 5.0, bal.Taken)
	assert.Equal(t, 15.0, bal.Available)
}

func TestAPI_Submit_InsufficientBalanceIsConflict(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 3)

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/leave-requests", SubmitLeaveRequest{
		LeaveTypeID: "annual", FromDate: "2025-07-07", ToDate: "2025-07-11", DurationDays: 5,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_balance", decode[ErrorResponse](t, rec).Code)
}

func TestAPI_Submit_ValidationIsBadRequest(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 20)

	// Below the policy's half-day minimum
	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/leave-requests", SubmitLeaveRequest{
		LeaveTypeID: "annual", FromDate: "2025-07-07", ToDate: "2025-07-07", DurationDays: 0.25,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Code)
}

func TestAPI_HRDecisionBeforeManagerIsConflict(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 20)

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/leave-requests", SubmitLeaveRequest{
		LeaveTypeID: "annual", FromDate: "2025-07-07", ToDate: "2025-07-11", DurationDays: 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[LeaveRequestDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/leave-requests/"+created.ID+"/hr-decision", DecisionRequest{
		ActorID: "hr-1", Decision: "APPROVE",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state_transition", decode[ErrorResponse](t, rec).Code)
}

func TestAPI_CancelAndAmend(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 20)

	rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/leave-requests", SubmitLeaveRequest{
		LeaveTypeID: "annual", FromDate: "2025-07-07", ToDate: "2025-07-11", DurationDays: 5,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[LeaveRequestDTO](t, rec)

	// Amend down to 3 days
	rec = doJSON(t, router, http.MethodPut, "/api/leave-requests/"+created.ID, AmendLeaveRequest{
		FromDate: "2025-07-07", ToDate: "2025-07-09", DurationDays: 3,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3.0, decode[LeaveRequestDTO](t, rec).DurationDays)

	// Cancel releases the hold
	rec = doJSON(t, router, http.MethodPost, "/api/leave-requests/"+created.ID+"/cancel", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/emp-1/balance?leave_type=annual", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20.0, decode[BalanceDTO](t, rec).Available)
}

func TestAPI_ListEmployeeRequests(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 20)

	for _, from := range []string{"2025-07-07", "2025-08-04"} {
		rec := doJSON(t, router, http.MethodPost, "/api/employees/emp-1/leave-requests", SubmitLeaveRequest{
			LeaveTypeID: "annual", FromDate: from, ToDate: from, DurationDays: 1,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/employees/emp-1/leave-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LeaveRequestDTO](t, rec), 2)
}

// =============================================================================
// POLICY & ADMIN ENDPOINTS
// =============================================================================

func TestAPI_CreatePolicyAndUseIt(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/leave-types", CreatePolicyRequest{
		Config: factory.PolicyJSON{
			LeaveTypeID: "annual",
			Name:        "Annual Leave",
			Accrual:     &factory.AccrualJSON{Method: "MONTHLY", MonthlyRate: 2, Rounding: "NEAREST_HALF"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/leave-types/annual", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	policy := decode[PolicyDTO](t, rec)
	assert.Equal(t, "MONTHLY", policy.Config.Accrual.Method)
}

func TestAPI_CreatePolicy_InvalidEnumRejected(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/leave-types", CreatePolicyRequest{
		Config: factory.PolicyJSON{
			LeaveTypeID: "broken",
			Accrual:     &factory.AccrualJSON{Method: "WEEKLY"},
		},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RunAccrualEndpoint(t *testing.T) {
	router, store := newTestRouter(t)
	seedEmployee(t, store, "emp-1")
	seedAnnualPolicy(t, store)
	assignBalance(t, router, "emp-1", 0)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/accrual", RunAccrualRequest{
		EmployeeID: "emp-1", LeaveTypeID: "annual", AsOf: "2025-05-01",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bal := decode[BalanceDTO](t, rec)
	// 4 months at 1.75 = 7.0 raw, NEAREST_HALF keeps 7.0
	assert.Equal(t, 7.0, bal.AccruedRounded)
}

func TestAPI_Holidays(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/holidays", HolidayDTO{
		Date: "2025-12-25", Name: "Christmas Day",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/holidays?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	holidays := decode[[]HolidayDTO](t, rec)
	require.Len(t, holidays, 1)
	assert.Equal(t, "Christmas Day", holidays[0].Name)

	rec = doJSON(t, router, http.MethodDelete, "/api/holidays?date=2025-12-25&name=Christmas+Day", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
