// Package memory provides in-memory storage implementations (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atlashr/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - Implements every leave storage interface
// =============================================================================

type Store struct {
	mu           sync.RWMutex
	entitlements map[key]*leave.Entitlement
	reservations map[leave.RequestID]*leave.Reservation
	requests     map[leave.RequestID]*leave.LeaveRequest
	policies     map[leave.LeaveTypeID]*leave.Policy
	employees    map[leave.EmployeeID]*leave.Employee
	holidays     map[string]leave.Holiday
}

type key struct {
	EmployeeID  leave.EmployeeID
	LeaveTypeID leave.LeaveTypeID
}

func New() *Store {
	return &Store{
		entitlements: make(map[key]*leave.Entitlement),
		reservations: make(map[leave.RequestID]*leave.Reservation),
		requests:     make(map[leave.RequestID]*leave.LeaveRequest),
		policies:     make(map[leave.LeaveTypeID]*leave.Policy),
		employees:    make(map[leave.EmployeeID]*leave.Employee),
		holidays:     make(map[string]leave.Holiday),
	}
}

// =============================================================================
// ENTITLEMENT STORE
// =============================================================================

func (s *Store) GetEntitlement(_ context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID) (*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entitlements[key{employeeID, leaveTypeID}]
	if !ok {
		return nil, fmt.Errorf("entitlement %s/%s: %w", employeeID, leaveTypeID, leave.ErrEntitlementNotFound)
	}
	copied := *ent
	return &copied, nil
}

func (s *Store) CreateEntitlement(_ context.Context, ent *leave.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{ent.EmployeeID, ent.LeaveTypeID}
	if _, ok := s.entitlements[k]; ok {
		return &leave.ValidationError{Field: "entitlement", Rule: "unique",
			Message: fmt.Sprintf("entitlement already assigned for %s/%s", ent.EmployeeID, ent.LeaveTypeID)}
	}
	copied := *ent
	s.entitlements[k] = &copied
	return nil
}

func (s *Store) UpdateEntitlement(_ context.Context, ent *leave.Entitlement, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateEntitlementLocked(ent, expectedVersion)
}

func (s *Store) updateEntitlementLocked(ent *leave.Entitlement, expectedVersion int64) error {
	k := key{ent.EmployeeID, ent.LeaveTypeID}
	current, ok := s.entitlements[k]
	if !ok {
		return fmt.Errorf("entitlement %s/%s: %w", ent.EmployeeID, ent.LeaveTypeID, leave.ErrEntitlementNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("entitlement %s/%s at version %d: %w",
			ent.EmployeeID, ent.LeaveTypeID, expectedVersion, leave.ErrConcurrencyConflict)
	}
	copied := *ent
	copied.Version = expectedVersion + 1
	s.entitlements[k] = &copied
	ent.Version = copied.Version
	return nil
}

func (s *Store) UpdateEntitlementWithReservation(_ context.Context, ent *leave.Entitlement, expectedVersion int64, res *leave.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateEntitlementLocked(ent, expectedVersion); err != nil {
		return err
	}
	copied := *res
	s.reservations[res.RequestID] = &copied
	return nil
}

func (s *Store) GetReservation(_ context.Context, requestID leave.RequestID) (*leave.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.reservations[requestID]
	if !ok {
		return nil, fmt.Errorf("reservation %s: %w", requestID, leave.ErrReservationNotFound)
	}
	copied := *res
	return &copied, nil
}

func (s *Store) ListEntitlements(_ context.Context) ([]*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*leave.Entitlement, 0, len(s.entitlements))
	for _, ent := range s.entitlements {
		copied := *ent
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EmployeeID != result[j].EmployeeID {
			return result[i].EmployeeID < result[j].EmployeeID
		}
		return result[i].LeaveTypeID < result[j].LeaveTypeID
	})
	return result, nil
}

// =============================================================================
// POLICY STORE
// =============================================================================

func (s *Store) GetPolicy(_ context.Context, leaveTypeID leave.LeaveTypeID) (*leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[leaveTypeID]
	if !ok {
		return nil, fmt.Errorf("leave type %s: %w", leaveTypeID, leave.ErrPolicyNotFound)
	}
	copied := *p
	return &copied, nil
}

func (s *Store) ListPolicies(_ context.Context) ([]*leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*leave.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		copied := *p
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) SavePolicy(_ context.Context, p *leave.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *p
	s.policies[p.LeaveTypeID] = &copied
	return nil
}

func (s *Store) DeletePolicy(_ context.Context, leaveTypeID leave.LeaveTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.policies, leaveTypeID)
	return nil
}

// =============================================================================
// REQUEST STORE
// =============================================================================

func (s *Store) GetRequest(_ context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, leave.ErrRequestNotFound)
	}
	copied := *r
	return &copied, nil
}

func (s *Store) CreateRequest(_ context.Context, r *leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[r.ID]; ok {
		return &leave.ValidationError{Field: "id", Rule: "unique",
			Message: fmt.Sprintf("request %s already exists", r.ID)}
	}
	copied := *r
	s.requests[r.ID] = &copied
	return nil
}

func (s *Store) UpdateRequest(_ context.Context, r *leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[r.ID]; !ok {
		return fmt.Errorf("request %s: %w", r.ID, leave.ErrRequestNotFound)
	}
	copied := *r
	s.requests[r.ID] = &copied
	return nil
}

func (s *Store) DeleteRequest(_ context.Context, id leave.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.requests, id)
	return nil
}

func (s *Store) ListRequestsByEmployee(_ context.Context, employeeID leave.EmployeeID) ([]*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*leave.LeaveRequest
	for _, r := range s.requests {
		if r.EmployeeID == employeeID {
			copied := *r
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) ListRequestsByState(_ context.Context, state leave.RequestState) ([]*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*leave.LeaveRequest
	for _, r := range s.requests {
		if r.State == state {
			copied := *r
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

func (s *Store) GetEmployee(_ context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emp, ok := s.employees[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, leave.ErrEmployeeNotFound)
	}
	copied := *emp
	return &copied, nil
}

func (s *Store) SaveEmployee(_ context.Context, emp *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *emp
	s.employees[emp.ID] = &copied
	return nil
}

func (s *Store) ListEmployees(_ context.Context) ([]*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*leave.Employee, 0, len(s.employees))
	for _, emp := range s.employees {
		copied := *emp
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) DeleteEmployee(_ context.Context, id leave.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.employees, id)
	return nil
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func (s *Store) SaveHoliday(_ context.Context, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holidays[holidayKey(h.Date, h.Name)] = h
	return nil
}

func (s *Store) DeleteHoliday(_ context.Context, date time.Time, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.holidays, holidayKey(date, name))
	return nil
}

func (s *Store) ListHolidays(_ context.Context, year int) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []leave.Holiday
	for _, h := range s.holidays {
		if h.Date.Year() == year {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (s *Store) IsHoliday(_ context.Context, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := date.Format("2006-01-02")
	for _, h := range s.holidays {
		if h.Date.Format("2006-01-02") == day {
			return true, nil
		}
	}
	return false, nil
}

func holidayKey(date time.Time, name string) string {
	return date.Format("2006-01-02") + "/" + name
}
