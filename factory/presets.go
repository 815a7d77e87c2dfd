package factory

import "fmt"

// =============================================================================
// PRESET POLICIES
// =============================================================================
//
// Ready-made JSON definitions for the common leave types. Deployments
// seed these on first run and tune them through the admin API.

// AnnualLeaveJSON builds a standard annual-leave policy with monthly
// accrual and a capped carry-forward.
func AnnualLeaveJSON(leaveTypeID, name string, monthlyRate, maxCarry float64) string {
	return fmt.Sprintf(`{
		"leave_type_id": %q,
		"name": %q,
		"accrual": {
			"method": "MONTHLY",
			"monthly_rate": %g,
			"rounding": "NEAREST_HALF"
		},
		"carry_forward": {
			"allowed": true,
			"max_days": %g,
			"expiry_after_months": 3
		},
		"request_rules": {
			"min_days": 0.5
		}
	}`, leaveTypeID, name, monthlyRate, maxCarry)
}

// SickLeaveJSON builds a sick-leave policy. No accrual, no carry-over,
// attachment required so a certificate backs the request.
func SickLeaveJSON(leaveTypeID, name string, maxConsecutive float64) string {
	return fmt.Sprintf(`{
		"leave_type_id": %q,
		"name": %q,
		"accrual": {"method": "NONE"},
		"request_rules": {
			"min_days": 0.5,
			"max_consecutive_days": %g,
			"requires_attachment": true
		}
	}`, leaveTypeID, name, maxConsecutive)
}

// SeniorityLeaveJSON builds a policy with a yearly grant on top of a
// monthly drip, gated behind a tenure requirement.
func SeniorityLeaveJSON(leaveTypeID, name string, monthlyRate, yearlyRate float64, minTenureMonths int) string {
	return fmt.Sprintf(`{
		"leave_type_id": %q,
		"name": %q,
		"accrual": {
			"method": "HYBRID",
			"monthly_rate": %g,
			"yearly_rate": %g,
			"rounding": "DOWN"
		},
		"request_rules": {
			"min_days": 1,
			"min_tenure_months": %d
		}
	}`, leaveTypeID, name, monthlyRate, yearlyRate, minTenureMonths)
}

// UnpaidLeaveJSON builds a minimal policy: no accrual, no carry-over.
func UnpaidLeaveJSON(leaveTypeID, name string) string {
	return fmt.Sprintf(`{
		"leave_type_id": %q,
		"name": %q,
		"accrual": {"method": "NONE"},
		"request_rules": {"min_days": 1}
	}`, leaveTypeID, name)
}
