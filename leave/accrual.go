package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL RESULT
// =============================================================================

// AccrualResult is the outcome of one accrual computation. The ledger
// applies it to the entitlement; ComputeAccrual itself never mutates.
type AccrualResult struct {
	Delta              Days
	NewAccruedRaw      Days
	NewAccruedRounded  Days
	NewLastAccrualDate time.Time
}

func (r AccrualResult) IsNoop() bool {
	return r.Delta.IsZero()
}

// =============================================================================
// ACCRUAL ENGINE
// =============================================================================

// ComputeAccrual computes the accrual earned between the entitlement's
// last accrual date and asOf, per the policy's method.
//
// MONTHLY accrues monthlyRate per whole calendar month elapsed; the last
// accrual date advances only by the whole months consumed, so a partial
// month is retained and accrued on a later call. YEARLY accrues
// yearlyRate once per calendar-year boundary crossed, multiple crossings
// accruing multiple times. HYBRID is both. Rounding applies to the
// cumulative raw accrual, not to the delta, so repeated rounding never
// compounds.
//
// Calling twice with the same asOf and an unchanged last accrual date
// yields a zero delta.
func ComputeAccrual(ent *Entitlement, policy *Policy, asOf time.Time) AccrualResult {
	result := AccrualResult{
		Delta:              ZeroDays(),
		NewAccruedRaw:      ent.AccruedRaw,
		NewAccruedRounded:  ent.AccruedRounded,
		NewLastAccrualDate: ent.LastAccrualDate,
	}
	if policy.AccrualMethod == AccrualNone {
		return result
	}
	if !asOf.After(ent.LastAccrualDate) {
		return result
	}

	delta := ZeroDays()
	newLast := ent.LastAccrualDate

	if policy.AccrualMethod == AccrualMonthly || policy.AccrualMethod == AccrualHybrid {
		months := wholeMonthsBetween(ent.LastAccrualDate, asOf)
		if months > 0 {
			delta = delta.Add(policy.MonthlyRate.Mul(decimal.NewFromInt(int64(months))))
			newLast = ent.LastAccrualDate.AddDate(0, months, 0)
		}
	}

	if policy.AccrualMethod == AccrualYearly || policy.AccrualMethod == AccrualHybrid {
		// For HYBRID the grant waits until the monthly advance itself has
		// crossed the boundary; the last accrual date is the only state,
		// and granting off asOf while the date stays behind the boundary
		// would grant again on the next call.
		grantUpTo := asOf
		if policy.AccrualMethod == AccrualHybrid {
			grantUpTo = newLast
		}
		crossings := yearBoundariesCrossed(ent.LastAccrualDate, grantUpTo)
		if crossings > 0 {
			delta = delta.Add(policy.YearlyRate.Mul(decimal.NewFromInt(int64(crossings))))
			if policy.AccrualMethod == AccrualYearly {
				newLast = asOf
			}
		}
	}

	if delta.IsZero() {
		return result
	}

	raw := ent.AccruedRaw.Add(delta)
	result.Delta = delta
	result.NewAccruedRaw = raw
	result.NewAccruedRounded = policy.RoundingRule.Apply(raw)
	result.NewLastAccrualDate = newLast
	return result
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

// wholeMonthsBetween counts complete calendar months from one date to
// another. The day-of-month anchors the month boundary; anchors past the
// end of a short month clamp to its last day (Jan 31 -> Feb 28).
func wholeMonthsBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if months < 0 {
		return 0
	}
	anchor := from.Day()
	if last := lastDayOfMonth(to.Year(), to.Month()); anchor > last {
		anchor = last
	}
	if to.Day() < anchor {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// yearBoundariesCrossed counts January firsts strictly after from and
// not after to.
func yearBoundariesCrossed(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	n := to.Year() - from.Year()
	if n < 0 {
		return 0
	}
	return n
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
