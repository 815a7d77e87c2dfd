package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atlashr/leave-engine/leave"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthlyPolicy(rate float64, rounding leave.RoundingRule) *leave.Policy {
	return &leave.Policy{
		LeaveTypeID:   "annual",
		Name:          "Annual Leave",
		AccrualMethod: leave.AccrualMonthly,
		MonthlyRate:   leave.NewDays(rate),
		RoundingRule:  rounding,
	}
}

func entitlementAt(last time.Time) *leave.Entitlement {
	return &leave.Entitlement{
		EmployeeID:        "emp-1",
		LeaveTypeID:       "annual",
		YearlyEntitlement: leave.NewDays(20),
		CarryForward:      leave.ZeroDays(),
		AccruedRaw:        leave.ZeroDays(),
		AccruedRounded:    leave.ZeroDays(),
		Taken:             leave.ZeroDays(),
		Reserved:          leave.ZeroDays(),
		LastAccrualDate:   last,
		Version:           1,
	}
}

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

func TestComputeAccrual_Monthly_WholeMonths(t *testing.T) {
	// GIVEN: Last accrual on Jan 15, rate 1.75/month
	// WHEN: Accruing as of Apr 20 (3 whole months elapsed)
	// THEN: Delta is 3 * 1.75 = 5.25, last accrual date advances to Apr 15

	ent := entitlementAt(date(2025, time.January, 15))
	policy := monthlyPolicy(1.75, leave.RoundNone)

	result := leave.ComputeAccrual(ent, policy, date(2025, time.April, 20))

	assert.True(t, leave.NewDays(5.25).Equal(result.Delta), "delta: got %v", result.Delta)
	assert.Equal(t, date(2025, time.April, 15), result.NewLastAccrualDate)
}

func TestComputeAccrual_Monthly_PartialMonthRetained(t *testing.T) {
	// GIVEN: Last accrual on Jan 15
	// WHEN: Accruing as of Feb 10 (less than one whole month)
	// THEN: Nothing accrues and the last accrual date does not move,
	//       so the partial month counts toward the next run

	ent := entitlementAt(date(2025, time.January, 15))
	policy := monthlyPolicy(1.75, leave.RoundNone)

	result := leave.ComputeAccrual(ent, policy, date(2025, time.February, 10))

	assert.True(t, result.IsNoop())
	assert.Equal(t, date(2025, time.January, 15), result.NewLastAccrualDate)

	// The retained partial month completes on Feb 15
	result = leave.ComputeAccrual(ent, policy, date(2025, time.February, 15))
	assert.True(t, leave.NewDays(1.75).Equal(result.Delta))
	assert.Equal(t, date(2025, time.February, 15), result.NewLastAccrualDate)
}

func TestComputeAccrual_Monthly_IdempotentForFixedDate(t *testing.T) {
	// GIVEN: Accrual already applied up to Mar 15
	// WHEN: Running accrual again with the same asOf
	// THEN: Zero delta

	ent := entitlementAt(date(2025, time.January, 15))
	policy := monthlyPolicy(2, leave.RoundNone)

	first := leave.ComputeAccrual(ent, policy, date(2025, time.March, 15))
	assert.True(t, leave.NewDays(4).Equal(first.Delta))

	ent.AccruedRaw = first.NewAccruedRaw
	ent.AccruedRounded = first.NewAccruedRounded
	ent.LastAccrualDate = first.NewLastAccrualDate

	second := leave.ComputeAccrual(ent, policy, date(2025, time.March, 15))
	assert.True(t, second.IsNoop(), "second run should be a no-op, got delta %v", second.Delta)
}

func TestComputeAccrual_Monthly_EndOfMonthAnchorClamps(t *testing.T) {
	// GIVEN: Last accrual on Jan 31
	// WHEN: Accruing as of Feb 28 (non-leap year)
	// THEN: The anchor clamps to Feb's last day, so one month has elapsed

	ent := entitlementAt(date(2025, time.January, 31))
	policy := monthlyPolicy(1, leave.RoundNone)

	result := leave.ComputeAccrual(ent, policy, date(2025, time.February, 28))

	assert.True(t, leave.NewDays(1).Equal(result.Delta), "got %v", result.Delta)
}

func TestComputeAccrual_None_NeverAccrues(t *testing.T) {
	ent := entitlementAt(date(2025, time.January, 1))
	policy := &leave.Policy{
		LeaveTypeID:   "unpaid",
		AccrualMethod: leave.AccrualNone,
		RoundingRule:  leave.RoundNone,
	}

	result := leave.ComputeAccrual(ent, policy, date(2026, time.June, 1))
	assert.True(t, result.IsNoop())
}

// =============================================================================
// YEARLY & HYBRID ACCRUAL
// =============================================================================

func TestComputeAccrual_Yearly_GrantsAtBoundary(t *testing.T) {
	// GIVEN: Last accrual in October 2024, yearly rate 5
	// WHEN: Accruing as of March 2025 (one Jan 1 crossed)
	// THEN: Delta is 5

	ent := entitlementAt(date(2024, time.October, 1))
	policy := &leave.Policy{
		LeaveTypeID:   "seniority",
		AccrualMethod: leave.AccrualYearly,
		YearlyRate:    leave.NewDays(5),
		RoundingRule:  leave.RoundNone,
	}

	result := leave.ComputeAccrual(ent, policy, date(2025, time.March, 1))
	assert.True(t, leave.NewDays(5).Equal(result.Delta))

	// A second run in the same year grants nothing further
	ent.AccruedRaw = result.NewAccruedRaw
	ent.AccruedRounded = result.NewAccruedRounded
	ent.LastAccrualDate = result.NewLastAccrualDate

	again := leave.ComputeAccrual(ent, policy, date(2025, time.November, 1))
	assert.True(t, again.IsNoop())
}

func TestComputeAccrual_Yearly_MultipleBoundaries(t *testing.T) {
	// GIVEN: Accrual last ran in 2023
	// WHEN: Catching up as of 2026 (three Jan 1s crossed)
	// THEN: Three grants accrue at once

	ent := entitlementAt(date(2023, time.June, 1))
	policy := &leave.Policy{
		LeaveTypeID:   "seniority",
		AccrualMethod: leave.AccrualYearly,
		YearlyRate:    leave.NewDays(2),
		RoundingRule:  leave.RoundNone,
	}

	result := leave.ComputeAccrual(ent, policy, date(2026, time.June, 1))
	assert.True(t, leave.NewDays(6).Equal(result.Delta), "got %v", result.Delta)
}

func TestComputeAccrual_Hybrid_NoDoubleYearlyGrant(t *testing.T) {
	// GIVEN: Hybrid policy, last accrual Dec 20
	// WHEN: Running on Jan 10 (boundary crossed, but no whole month yet)
	//       and again on Jan 25 and Feb 25
	// THEN: The yearly grant lands exactly once

	policy := &leave.Policy{
		LeaveTypeID:   "senior-annual",
		AccrualMethod: leave.AccrualHybrid,
		MonthlyRate:   leave.NewDays(1),
		YearlyRate:    leave.NewDays(3),
		RoundingRule:  leave.RoundNone,
	}
	ent := entitlementAt(date(2024, time.December, 20))

	// No whole month elapsed: the grant waits
	r1 := leave.ComputeAccrual(ent, policy, date(2025, time.January, 10))
	assert.True(t, r1.IsNoop())

	// One whole month elapsed, the advance crosses Jan 1: monthly + yearly
	r2 := leave.ComputeAccrual(ent, policy, date(2025, time.January, 25))
	assert.True(t, leave.NewDays(4).Equal(r2.Delta), "got %v", r2.Delta)

	ent.AccruedRaw = r2.NewAccruedRaw
	ent.AccruedRounded = r2.NewAccruedRounded
	ent.LastAccrualDate = r2.NewLastAccrualDate

	// Next month: monthly only, no second yearly grant
	r3 := leave.ComputeAccrual(ent, policy, date(2025, time.February, 25))
	assert.True(t, leave.NewDays(1).Equal(r3.Delta), "got %v", r3.Delta)
}

// =============================================================================
// ROUNDING
// =============================================================================

func TestRoundingRule_Apply(t *testing.T) {
	cases := []struct {
		name string
		rule leave.RoundingRule
		in   string
		want string
	}{
		{"none leaves value", leave.RoundNone, "1.666", "1.666"},
		{"up to next half", leave.RoundUp, "1.1", "1.5"},
		{"up exact value unchanged", leave.RoundUp, "1.5", "1.5"},
		{"down to previous half", leave.RoundDown, "1.9", "1.5"},
		{"nearest half rounds up", leave.RoundNearestHalf, "1.3", "1.5"},
		{"nearest half rounds down", leave.RoundNearestHalf, "1.2", "1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.rule.Apply(leave.MustParseDays(tc.in))
			assert.True(t, leave.MustParseDays(tc.want).Equal(got), "got %v", got)
		})
	}
}

func TestComputeAccrual_RoundingDoesNotCompound(t *testing.T) {
	// GIVEN: Rate 1.666/month with UP rounding
	// WHEN: Accruing month by month for three months
	// THEN: The rounded figure tracks the cumulative raw figure, never
	//       the sum of individually rounded deltas

	policy := monthlyPolicy(1.666, leave.RoundUp)
	ent := entitlementAt(date(2025, time.January, 1))

	for _, m := range []time.Time{
		date(2025, time.February, 1),
		date(2025, time.March, 1),
		date(2025, time.April, 1),
	} {
		r := leave.ComputeAccrual(ent, policy, m)
		ent.AccruedRaw = r.NewAccruedRaw
		ent.AccruedRounded = r.NewAccruedRounded
		ent.LastAccrualDate = r.NewLastAccrualDate
	}

	// raw = 4.998; per-delta rounding would give 2.0 * 3 = 6.0
	assert.True(t, leave.MustParseDays("4.998").Equal(ent.AccruedRaw), "raw: got %v", ent.AccruedRaw)
	assert.True(t, leave.NewDays(5).Equal(ent.AccruedRounded), "rounded: got %v", ent.AccruedRounded)
}
