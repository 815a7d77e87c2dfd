package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlashr/leave-engine/leave"
	"github.com/atlashr/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = date(2025, time.June, 16)

func newTestService(t *testing.T) (*leave.RequestService, *leave.Ledger, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SavePolicy(ctx, &leave.Policy{
		LeaveTypeID:    "annual",
		Name:           "Annual Leave",
		AccrualMethod:  leave.AccrualNone,
		RoundingRule:   leave.RoundNone,
		MinRequestDays: leave.NewDays(0.5),
	}))
	require.NoError(t, store.SavePolicy(ctx, &leave.Policy{
		LeaveTypeID:        "sick",
		Name:               "Sick Leave",
		AccrualMethod:      leave.AccrualNone,
		RoundingRule:       leave.RoundNone,
		RequiresAttachment: true,
		MaxConsecutiveDays: leave.NewDays(10),
	}))
	require.NoError(t, store.SavePolicy(ctx, &leave.Policy{
		LeaveTypeID:     "sabbatical",
		Name:            "Sabbatical",
		AccrualMethod:   leave.AccrualNone,
		RoundingRule:    leave.RoundNone,
		MinTenureMonths: 24,
	}))
	require.NoError(t, store.SaveEmployee(ctx, &leave.Employee{
		ID:      "emp-1",
		Name:    "Ada Example",
		Email:   "ada@example.com",
		HiredAt: date(2024, time.January, 1),
		Active:  true,
	}))

	resolver := leave.NewCachedResolver(store)
	ledger := leave.NewLedger(store, resolver)
	svc := leave.NewRequestService(store, store, resolver, ledger).
		WithClock(func() time.Time { return testNow })

	for _, lt := range []leave.LeaveTypeID{"annual", "sick", "sabbatical"} {
		_, err := ledger.Assign(ctx, "emp-1", lt, leave.NewDays(20), date(2025, time.January, 1))
		require.NoError(t, err)
	}
	return svc, ledger, store
}

func submitAnnual(t *testing.T, svc *leave.RequestService, days float64) *leave.LeaveRequest {
	t.Helper()
	req, err := svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:    "emp-1",
		LeaveTypeID:   "annual",
		FromDate:      date(2025, time.July, 7),
		ToDate:        date(2025, time.July, 11),
		DurationDays:  leave.NewDays(days),
		Justification: "summer break",
	})
	require.NoError(t, err)
	return req
}

func available(t *testing.T, ledger *leave.Ledger, lt string) leave.Days {
	t.Helper()
	avail, err := ledger.GetAvailable(context.Background(), "emp-1", leave.LeaveTypeID(lt))
	require.NoError(t, err)
	return avail
}

type staticAttachments struct{ exists bool }

func (s staticAttachments) AttachmentExists(ctx context.Context, attachmentID string) (bool, error) {
	return s.exists, nil
}

// =============================================================================
// SUBMISSION
// =============================================================================

func TestRequestService_Submit_ReservesAndPends(t *testing.T) {
	// GIVEN: 20 days available
	// WHEN: Submitting a 5-day request
	// THEN: The request is PENDING and the balance drops by 5

	svc, ledger, _ := newTestService(t)

	req := submitAnnual(t, svc, 5)

	assert.Equal(t, leave.StatePending, req.State)
	assert.NotEmpty(t, req.ID)
	assert.True(t, leave.NewDays(15).Equal(available(t, ledger, "annual")))
}

func TestRequestService_Submit_UnknownEmployee(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:   "emp-ghost",
		LeaveTypeID:  "annual",
		FromDate:     date(2025, time.July, 7),
		ToDate:       date(2025, time.July, 8),
		DurationDays: leave.NewDays(2),
	})

	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
}

func TestRequestService_Submit_BelowMinimumDuration(t *testing.T) {
	svc, ledger, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  "annual",
		FromDate:     date(2025, time.July, 7),
		ToDate:       date(2025, time.July, 7),
		DurationDays: leave.NewDays(0.25),
	})

	assert.ErrorIs(t, err, leave.ErrValidation)
	assert.True(t, leave.NewDays(20).Equal(available(t, ledger, "annual")), "no balance may be held")
}

func TestRequestService_Submit_DateOrderRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  "annual",
		FromDate:     date(2025, time.July, 11),
		ToDate:       date(2025, time.July, 7),
		DurationDays: leave.NewDays(3),
	})

	var valErr *leave.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "toDate", valErr.Field)
}

func TestRequestService_Submit_AttachmentRequired(t *testing.T) {
	svc, _, _ := newTestService(t)

	// No attachment reference at all
	_, err := svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  "sick",
		FromDate:     date(2025, time.June, 17),
		ToDate:       date(2025, time.June, 18),
		DurationDays: leave.NewDays(2),
	})
	assert.ErrorIs(t, err, leave.ErrValidation)

	// A reference that the attachment store does not know
	svc.Attachments = staticAttachments{exists: false}
	_, err = svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  "sick",
		FromDate:     date(2025, time.June, 17),
		ToDate:       date(2025, time.June, 18),
		DurationDays: leave.NewDays(2),
		AttachmentID: "att-404",
	})
	assert.ErrorIs(t, err, leave.ErrValidation)

	// A valid reference passes
	svc.Attachments = staticAttachments{exists: true}
	req, err := svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  "sick",
		FromDate:     date(2025, time.June, 17),
		ToDate:       date(2025, time.June, 18),
		DurationDays: leave.NewDays(2),
		AttachmentID: "att-1",
	})
	require.NoError(t, err)
	assert.Equal(t, leave.StatePending, req.State)
}

func TestRequestService_Submit_TenureTooShort(t *testing.T) {
	// GIVEN: Employee hired Jan 2024, sabbatical requires 24 months
	// WHEN: Submitting in June 2025 (17 months of tenure)
	// THEN: Rejected on tenure

	svc, _, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID:   "emp-1",
		LeaveTypeID:  "sabbatical",
		FromDate:     date(2025, time.July, 1),
		ToDate:       date(2025, time.July, 14),
		DurationDays: leave.NewDays(10),
	})

	var valErr *leave.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "min_tenure", valErr.Rule)
}

// =============================================================================
// DECISION CHAIN
// =============================================================================

func TestRequestService_FullApprovalChain(t *testing.T) {
	// GIVEN: A pending 5-day request
	// WHEN: Manager approves, then HR approves
	// THEN: The reservation becomes consumption

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	afterManager, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionApprove, "ok by me")
	require.NoError(t, err)
	assert.Equal(t, leave.StateManagerApproved, afterManager.State)
	require.NotNil(t, afterManager.ManagerDecision)
	assert.Equal(t, "mgr-1", afterManager.ManagerDecision.ActorID)

	// Still only reserved, not taken
	bal, err := ledger.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, leave.NewDays(5).Equal(bal.Reserved))
	assert.True(t, bal.Taken.IsZero())

	afterHR, err := svc.DecideAsHR(ctx, req.ID, "hr-1", leave.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StateHRApproved, afterHR.State)

	bal, err = ledger.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, bal.Reserved.IsZero())
	assert.True(t, leave.NewDays(5).Equal(bal.Taken))
	assert.True(t, leave.NewDays(15).Equal(bal.Available))
}

func TestRequestService_ManagerReject_ReleasesBalance(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	rejected, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionReject, "short staffed")
	require.NoError(t, err)
	assert.Equal(t, leave.StateManagerRejected, rejected.State)
	assert.True(t, leave.NewDays(20).Equal(available(t, ledger, "annual")))
}

func TestRequestService_HRReject_RestoresBalance(t *testing.T) {
	// GIVEN: A request the manager already approved
	// WHEN: HR rejects it
	// THEN: The full reservation returns to the available pool

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	_, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionApprove, "")
	require.NoError(t, err)

	rejected, err := svc.DecideAsHR(ctx, req.ID, "hr-1", leave.DecisionReject, "policy conflict")
	require.NoError(t, err)
	assert.Equal(t, leave.StateHRRejected, rejected.State)

	bal, err := ledger.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, leave.NewDays(20).Equal(bal.Available))
	assert.True(t, bal.Reserved.IsZero())
	assert.True(t, bal.Taken.IsZero())
}

func TestRequestService_HRDecision_RequiresManagerApproval(t *testing.T) {
	svc, _, _ := newTestService(t)
	req := submitAnnual(t, svc, 5)

	_, err := svc.DecideAsHR(context.Background(), req.ID, "hr-1", leave.DecisionApprove, "")

	var trErr *leave.InvalidTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, leave.StatePending, trErr.From)
}

func TestRequestService_TerminalStateIsImmutable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	_, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionReject, "")
	require.NoError(t, err)

	// A different verdict on a rejected request is an error
	_, err = svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionApprove, "")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)

	// Cancelling it is too
	err = svc.Cancel(ctx, req.ID)
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestRequestService_DecisionReplayIsNoop(t *testing.T) {
	// GIVEN: Manager already rejected
	// WHEN: The same rejection arrives again
	// THEN: Success, same state, balance untouched

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	_, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionReject, "")
	require.NoError(t, err)

	again, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionReject, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StateManagerRejected, again.State)
	assert.True(t, leave.NewDays(20).Equal(available(t, ledger, "annual")))
}

func TestRequestService_ConcurrentHRDecisions_OnlyOneLands(t *testing.T) {
	// GIVEN: A manager-approved 5-day request
	// WHEN: An HR approval and an HR rejection race on the same request
	// THEN: Exactly one lands; the stored state agrees with the ledger

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	_, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionApprove, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, d := range []leave.Decision{leave.DecisionApprove, leave.DecisionReject} {
		wg.Add(1)
		go func(i int, d leave.Decision) {
			defer wg.Done()
			_, errs[i] = svc.DecideAsHR(ctx, req.ID, "hr-1", d, "")
		}(i, d)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, leave.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one decision should land")

	final, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	bal, err := ledger.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)

	switch final.State {
	case leave.StateHRApproved:
		assert.True(t, leave.NewDays(5).Equal(bal.Taken))
		assert.True(t, bal.Reserved.IsZero())
		assert.True(t, leave.NewDays(15).Equal(bal.Available))
	case leave.StateHRRejected:
		assert.True(t, bal.Taken.IsZero())
		assert.True(t, bal.Reserved.IsZero())
		assert.True(t, leave.NewDays(20).Equal(bal.Available))
	default:
		t.Fatalf("unexpected final state %s", final.State)
	}
}

// =============================================================================
// CANCEL / AMEND / DELETE
// =============================================================================

func TestRequestService_Cancel_ReleasesAndIsIdempotent(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	require.NoError(t, svc.Cancel(ctx, req.ID))
	assert.True(t, leave.NewDays(20).Equal(available(t, ledger, "annual")))

	require.NoError(t, svc.Cancel(ctx, req.ID))

	cancelled, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StateCancelled, cancelled.State)
}

func TestRequestService_Amend_SwapsReservation(t *testing.T) {
	// GIVEN: A pending 5-day request
	// WHEN: Amending it to 3 days
	// THEN: Exactly 3 days are held afterwards

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	amended, err := svc.Amend(ctx, req.ID, leave.AmendInput{
		FromDate:     date(2025, time.July, 7),
		ToDate:       date(2025, time.July, 9),
		DurationDays: leave.NewDays(3),
	})
	require.NoError(t, err)
	assert.True(t, leave.NewDays(3).Equal(amended.DurationDays))

	bal, err := ledger.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, leave.NewDays(3).Equal(bal.Reserved))
	assert.True(t, leave.NewDays(17).Equal(bal.Available))
}

func TestRequestService_Amend_FailureRestoresOriginalHold(t *testing.T) {
	// GIVEN: A pending 5-day request against 20 days
	// WHEN: Amending to 25 days (more than available)
	// THEN: The amendment fails and the original 5-day hold still stands

	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	_, err := svc.Amend(ctx, req.ID, leave.AmendInput{
		FromDate:     date(2025, time.July, 1),
		ToDate:       date(2025, time.August, 5),
		DurationDays: leave.NewDays(25),
	})
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	bal, err := ledger.GetBalance(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.True(t, leave.NewDays(5).Equal(bal.Reserved), "reserved: got %v", bal.Reserved)

	unchanged, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, leave.NewDays(5).Equal(unchanged.DurationDays))
}

func TestRequestService_Amend_OnlyWhilePending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	_, err := svc.DecideAsManager(ctx, req.ID, "mgr-1", leave.DecisionApprove, "")
	require.NoError(t, err)

	_, err = svc.Amend(ctx, req.ID, leave.AmendInput{
		FromDate:     date(2025, time.July, 7),
		ToDate:       date(2025, time.July, 9),
		DurationDays: leave.NewDays(3),
	})
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
}

func TestRequestService_Delete_ReleasesAndRemoves(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	ctx := context.Background()
	req := submitAnnual(t, svc, 5)

	require.NoError(t, svc.Delete(ctx, req.ID))
	assert.True(t, leave.NewDays(20).Equal(available(t, ledger, "annual")))

	_, err := svc.Get(ctx, req.ID)
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}
