/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (EntitlementStore, PolicyStore,
  RequestStore, EmployeeDirectory) using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  leave.EntitlementStore:  Entitlement rows + reservation records
  leave.PolicyStore:       Leave policy definitions
  leave.RequestStore:      Leave request persistence
  leave.EmployeeDirectory: Employee registry

OPTIMISTIC CONCURRENCY:
  Entitlement rows carry a version column. Updates run as
  UPDATE ... WHERE version = ? and report leave.ErrConcurrencyConflict
  when no row matched, so the ledger's retry loop can re-read and
  re-apply. The reservation upsert rides in the same transaction as the
  entitlement update; the two never diverge.

KEY TABLES:
  entitlements:    One row per (employee, leave type), versioned
  reservations:    One row per request id (open/committed/released)
  leave_requests:  Request rows with both decision stages
  policies:        Per-leave-type accrual and submission rules
  employees:       Registry records (existence + tenure checks)
  holidays:        Company calendar

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := leave.NewLedger(store, resolver)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/ledger.go: EntitlementStore consumer
  - leave/request.go: RequestStore consumer
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atlashr/leave-engine/leave"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Entitlements (one row per employee/leave-type, versioned)
	CREATE TABLE IF NOT EXISTS entitlements (
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		yearly_entitlement TEXT NOT NULL,
		carry_forward TEXT NOT NULL,
		carry_forward_earned_at TEXT,
		accrued_raw TEXT NOT NULL,
		accrued_rounded TEXT NOT NULL,
		taken TEXT NOT NULL,
		reserved TEXT NOT NULL,
		last_accrual_date TEXT NOT NULL,
		next_reset_date TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type_id)
	);

	-- Reservations (one row per request id, the idempotency record)
	CREATE TABLE IF NOT EXISTS reservations (
		request_id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		days TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_key
		ON reservations(employee_id, leave_type_id, status);

	-- Leave requests (both decision stages inline)
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		duration_days TEXT NOT NULL,
		justification TEXT,
		attachment_id TEXT,
		state TEXT NOT NULL DEFAULT 'PENDING',
		manager_actor_id TEXT,
		manager_decision TEXT,
		manager_comment TEXT,
		manager_decided_at TEXT,
		hr_actor_id TEXT,
		hr_decision TEXT,
		hr_comment TEXT,
		hr_decided_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_state
		ON leave_requests(state);

	-- Policies (per leave type)
	CREATE TABLE IF NOT EXISTS policies (
		leave_type_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		accrual_method TEXT NOT NULL,
		monthly_rate TEXT NOT NULL,
		yearly_rate TEXT NOT NULL,
		rounding_rule TEXT NOT NULL,
		carry_forward_allowed BOOLEAN DEFAULT FALSE,
		max_carry_forward TEXT NOT NULL,
		expiry_after_months INTEGER DEFAULT 0,
		min_request_days TEXT NOT NULL,
		max_consecutive_days TEXT NOT NULL,
		requires_attachment BOOLEAN DEFAULT FALSE,
		min_tenure_months INTEGER DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		hired_at TEXT NOT NULL,
		active BOOLEAN DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Holidays (company calendar)
	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (date, name)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTITLEMENT STORE (leave.EntitlementStore interface)
// =============================================================================

// GetEntitlement loads one entitlement row.
func (s *Store) GetEntitlement(ctx context.Context, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID) (*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getEntitlement(ctx, s.db, employeeID, leaveTypeID)
}

func (s *Store) getEntitlement(ctx context.Context, db queryer, employeeID leave.EmployeeID, leaveTypeID leave.LeaveTypeID) (*leave.Entitlement, error) {
	query := `
		SELECT employee_id, leave_type_id, yearly_entitlement, carry_forward,
		       carry_forward_earned_at, accrued_raw, accrued_rounded, taken, reserved,
		       last_accrual_date, next_reset_date, version
		FROM entitlements
		WHERE employee_id = ? AND leave_type_id = ?
	`

	var (
		ent           leave.Entitlement
		yearly        string
		carry         string
		carryEarnedAt sql.NullString
		accruedRaw    string
		accruedRound  string
		taken         string
		reserved      string
		lastAccrual   string
		nextReset     string
	)

	err := db.QueryRowContext(ctx, query, employeeID, leaveTypeID).Scan(
		&ent.EmployeeID, &ent.LeaveTypeID, &yearly, &carry, &carryEarnedAt,
		&accruedRaw, &accruedRound, &taken, &reserved, &lastAccrual, &nextReset, &ent.Version,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entitlement %s/%s: %w", employeeID, leaveTypeID, leave.ErrEntitlementNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entitlement: %w", err)
	}

	ent.YearlyEntitlement = leave.MustParseDays(yearly)
	ent.CarryForward = leave.MustParseDays(carry)
	ent.AccruedRaw = leave.MustParseDays(accruedRaw)
	ent.AccruedRounded = leave.MustParseDays(accruedRound)
	ent.Taken = leave.MustParseDays(taken)
	ent.Reserved = leave.MustParseDays(reserved)
	ent.LastAccrualDate, _ = time.Parse(time.RFC3339, lastAccrual)
	ent.NextResetDate, _ = time.Parse(time.RFC3339, nextReset)
	if carryEarnedAt.Valid && carryEarnedAt.String != "" {
		ent.CarryForwardEarnedAt, _ = time.Parse(time.RFC3339, carryEarnedAt.String)
	}
	return &ent, nil
}

// CreateEntitlement inserts a fresh entitlement row.
func (s *Store) CreateEntitlement(ctx context.Context, ent *leave.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO entitlements
		(employee_id, leave_type_id, yearly_entitlement, carry_forward, carry_forward_earned_at,
		 accrued_raw, accrued_rounded, taken, reserved, last_accrual_date, next_reset_date,
		 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		ent.EmployeeID, ent.LeaveTypeID,
		ent.YearlyEntitlement.String(), ent.CarryForward.String(),
		nullTime(ent.CarryForwardEarnedAt),
		ent.AccruedRaw.String(), ent.AccruedRounded.String(),
		ent.Taken.String(), ent.Reserved.String(),
		ent.LastAccrualDate.Format(time.RFC3339),
		ent.NextResetDate.Format(time.RFC3339),
		ent.Version, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &leave.ValidationError{Field: "entitlement", Rule: "unique",
				Message: fmt.Sprintf("entitlement already assigned for %s/%s", ent.EmployeeID, ent.LeaveTypeID)}
		}
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

// UpdateEntitlement applies a versioned update to one entitlement row.
func (s *Store) UpdateEntitlement(ctx context.Context, ent *leave.Entitlement, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateEntitlementTx(ctx, s.db, ent, expectedVersion)
}

func (s *Store) updateEntitlementTx(ctx context.Context, db execer, ent *leave.Entitlement, expectedVersion int64) error {
	query := `
		UPDATE entitlements SET
			yearly_entitlement = ?,
			carry_forward = ?,
			carry_forward_earned_at = ?,
			accrued_raw = ?,
			accrued_rounded = ?,
			taken = ?,
			reserved = ?,
			last_accrual_date = ?,
			next_reset_date = ?,
			version = version + 1,
			updated_at = ?
		WHERE employee_id = ? AND leave_type_id = ? AND version = ?
	`

	result, err := db.ExecContext(ctx, query,
		ent.YearlyEntitlement.String(), ent.CarryForward.String(),
		nullTime(ent.CarryForwardEarnedAt),
		ent.AccruedRaw.String(), ent.AccruedRounded.String(),
		ent.Taken.String(), ent.Reserved.String(),
		ent.LastAccrualDate.Format(time.RFC3339),
		ent.NextResetDate.Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		ent.EmployeeID, ent.LeaveTypeID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("entitlement %s/%s at version %d: %w",
			ent.EmployeeID, ent.LeaveTypeID, expectedVersion, leave.ErrConcurrencyConflict)
	}

	ent.Version = expectedVersion + 1
	return nil
}

// UpdateEntitlementWithReservation applies the entitlement update and the
// reservation upsert in one transaction. Either both land or neither.
func (s *Store) UpdateEntitlementWithReservation(ctx context.Context, ent *leave.Entitlement, expectedVersion int64, res *leave.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.updateEntitlementTx(ctx, sqlTx, ent, expectedVersion); err != nil {
		return err
	}
	if err := s.upsertReservation(ctx, sqlTx, res); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (s *Store) upsertReservation(ctx context.Context, db execer, res *leave.Reservation) error {
	query := `
		INSERT INTO reservations (request_id, employee_id, leave_type_id, days, status, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			days = excluded.days,
			status = excluded.status,
			resolved_at = excluded.resolved_at
	`

	_, err := db.ExecContext(ctx, query,
		res.RequestID, res.EmployeeID, res.LeaveTypeID,
		res.Days.String(), res.Status,
		res.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(res.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert reservation: %w", err)
	}
	return nil
}

// GetReservation loads the reservation for a request id.
func (s *Store) GetReservation(ctx context.Context, requestID leave.RequestID) (*leave.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT request_id, employee_id, leave_type_id, days, status, created_at, resolved_at
		FROM reservations
		WHERE request_id = ?
	`

	var (
		res        leave.Reservation
		days       string
		createdAt  string
		resolvedAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, requestID).Scan(
		&res.RequestID, &res.EmployeeID, &res.LeaveTypeID, &days, &res.Status, &createdAt, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reservation %s: %w", requestID, leave.ErrReservationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reservation: %w", err)
	}

	res.Days = leave.MustParseDays(days)
	res.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if resolvedAt.Valid && resolvedAt.String != "" {
		res.ResolvedAt, _ = time.Parse(time.RFC3339, resolvedAt.String)
	}
	return &res, nil
}

// ListEntitlements returns every entitlement row. Used by the scheduler
// to run accrual and period resets across the company.
func (s *Store) ListEntitlements(ctx context.Context) ([]*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT employee_id, leave_type_id, yearly_entitlement, carry_forward,
		       carry_forward_earned_at, accrued_raw, accrued_rounded, taken, reserved,
		       last_accrual_date, next_reset_date, version
		FROM entitlements
		ORDER BY employee_id, leave_type_id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	defer rows.Close()

	var entitlements []*leave.Entitlement
	for rows.Next() {
		var (
			ent           leave.Entitlement
			yearly        string
			carry         string
			carryEarnedAt sql.NullString
			accruedRaw    string
			accruedRound  string
			taken         string
			reserved      string
			lastAccrual   string
			nextReset     string
		)
		if err := rows.Scan(
			&ent.EmployeeID, &ent.LeaveTypeID, &yearly, &carry, &carryEarnedAt,
			&accruedRaw, &accruedRound, &taken, &reserved, &lastAccrual, &nextReset, &ent.Version,
		); err != nil {
			return nil, err
		}
		ent.YearlyEntitlement = leave.MustParseDays(yearly)
		ent.CarryForward = leave.MustParseDays(carry)
		ent.AccruedRaw = leave.MustParseDays(accruedRaw)
		ent.AccruedRounded = leave.MustParseDays(accruedRound)
		ent.Taken = leave.MustParseDays(taken)
		ent.Reserved = leave.MustParseDays(reserved)
		ent.LastAccrualDate, _ = time.Parse(time.RFC3339, lastAccrual)
		ent.NextResetDate, _ = time.Parse(time.RFC3339, nextReset)
		if carryEarnedAt.Valid && carryEarnedAt.String != "" {
			ent.CarryForwardEarnedAt, _ = time.Parse(time.RFC3339, carryEarnedAt.String)
		}
		entitlements = append(entitlements, &ent)
	}
	return entitlements, rows.Err()
}

// =============================================================================
// POLICY STORE (leave.PolicyStore interface)
// =============================================================================

// SavePolicy upserts a policy row.
func (s *Store) SavePolicy(ctx context.Context, p *leave.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO policies
		(leave_type_id, name, accrual_method, monthly_rate, yearly_rate, rounding_rule,
		 carry_forward_allowed, max_carry_forward, expiry_after_months,
		 min_request_days, max_consecutive_days, requires_attachment, min_tenure_months,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(leave_type_id) DO UPDATE SET
			name = excluded.name,
			accrual_method = excluded.accrual_method,
			monthly_rate = excluded.monthly_rate,
			yearly_rate = excluded.yearly_rate,
			rounding_rule = excluded.rounding_rule,
			carry_forward_allowed = excluded.carry_forward_allowed,
			max_carry_forward = excluded.max_carry_forward,
			expiry_after_months = excluded.expiry_after_months,
			min_request_days = excluded.min_request_days,
			max_consecutive_days = excluded.max_consecutive_days,
			requires_attachment = excluded.requires_attachment,
			min_tenure_months = excluded.min_tenure_months,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		p.LeaveTypeID, p.Name, p.AccrualMethod,
		p.MonthlyRate.String(), p.YearlyRate.String(), p.RoundingRule,
		p.CarryForwardAllowed, p.MaxCarryForward.String(), p.ExpiryAfterMonths,
		p.MinRequestDays.String(), p.MaxConsecutiveDays.String(),
		p.RequiresAttachment, p.MinTenureMonths,
		now, now,
	)
	return err
}

// GetPolicy retrieves a policy by leave type.
func (s *Store) GetPolicy(ctx context.Context, leaveTypeID leave.LeaveTypeID) (*leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT leave_type_id, name, accrual_method, monthly_rate, yearly_rate, rounding_rule,
		       carry_forward_allowed, max_carry_forward, expiry_after_months,
		       min_request_days, max_consecutive_days, requires_attachment, min_tenure_months
		FROM policies WHERE leave_type_id = ?
	`

	p, err := scanPolicy(s.db.QueryRowContext(ctx, query, leaveTypeID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("leave type %s: %w", leaveTypeID, leave.ErrPolicyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	return p, nil
}

// ListPolicies returns all policies.
func (s *Store) ListPolicies(ctx context.Context) ([]*leave.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT leave_type_id, name, accrual_method, monthly_rate, yearly_rate, rounding_rule,
		       carry_forward_allowed, max_carry_forward, expiry_after_months,
		       min_request_days, max_consecutive_days, requires_attachment, min_tenure_months
		FROM policies ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*leave.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// DeletePolicy removes a policy.
func (s *Store) DeletePolicy(ctx context.Context, leaveTypeID leave.LeaveTypeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM policies WHERE leave_type_id = ?", leaveTypeID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*leave.Policy, error) {
	var (
		p           leave.Policy
		monthlyRate string
		yearlyRate  string
		maxCarry    string
		minRequest  string
		maxConsec   string
	)
	err := row.Scan(
		&p.LeaveTypeID, &p.Name, &p.AccrualMethod, &monthlyRate, &yearlyRate, &p.RoundingRule,
		&p.CarryForwardAllowed, &maxCarry, &p.ExpiryAfterMonths,
		&minRequest, &maxConsec, &p.RequiresAttachment, &p.MinTenureMonths,
	)
	if err != nil {
		return nil, err
	}
	p.MonthlyRate = leave.MustParseDays(monthlyRate)
	p.YearlyRate = leave.MustParseDays(yearlyRate)
	p.MaxCarryForward = leave.MustParseDays(maxCarry)
	p.MinRequestDays = leave.MustParseDays(minRequest)
	p.MaxConsecutiveDays = leave.MustParseDays(maxConsec)
	return &p, nil
}

// =============================================================================
// REQUEST STORE (leave.RequestStore interface)
// =============================================================================

const requestColumns = `
	id, employee_id, leave_type_id, from_date, to_date, duration_days,
	justification, attachment_id, state,
	manager_actor_id, manager_decision, manager_comment, manager_decided_at,
	hr_actor_id, hr_decision, hr_comment, hr_decided_at,
	created_at, updated_at
`

// CreateRequest inserts a request row.
func (s *Store) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO leave_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	mgrActor, mgrDecision, mgrComment, mgrAt := decisionColumns(r.ManagerDecision)
	hrActor, hrDecision, hrComment, hrAt := decisionColumns(r.HRDecision)

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.EmployeeID, r.LeaveTypeID,
		r.FromDate.Format(time.RFC3339), r.ToDate.Format(time.RFC3339),
		r.DurationDays.String(),
		nullString(r.Justification), nullString(r.AttachmentID), r.State,
		mgrActor, mgrDecision, mgrComment, mgrAt,
		hrActor, hrDecision, hrComment, hrAt,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

// UpdateRequest rewrites a request row.
func (s *Store) UpdateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE leave_requests SET
			from_date = ?, to_date = ?, duration_days = ?,
			justification = ?, attachment_id = ?, state = ?,
			manager_actor_id = ?, manager_decision = ?, manager_comment = ?, manager_decided_at = ?,
			hr_actor_id = ?, hr_decision = ?, hr_comment = ?, hr_decided_at = ?,
			updated_at = ?
		WHERE id = ?
	`

	mgrActor, mgrDecision, mgrComment, mgrAt := decisionColumns(r.ManagerDecision)
	hrActor, hrDecision, hrComment, hrAt := decisionColumns(r.HRDecision)

	result, err := s.db.ExecContext(ctx, query,
		r.FromDate.Format(time.RFC3339), r.ToDate.Format(time.RFC3339),
		r.DurationDays.String(),
		nullString(r.Justification), nullString(r.AttachmentID), r.State,
		mgrActor, mgrDecision, mgrComment, mgrAt,
		hrActor, hrDecision, hrComment, hrAt,
		r.UpdatedAt.UTC().Format(time.RFC3339),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("request %s: %w", r.ID, leave.ErrRequestNotFound)
	}
	return nil
}

// GetRequest retrieves a request by id.
func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE id = ?`

	requests, err := s.queryRequests(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("request %s: %w", id, leave.ErrRequestNotFound)
	}
	return requests[0], nil
}

// DeleteRequest removes a request row.
func (s *Store) DeleteRequest(ctx context.Context, id leave.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM leave_requests WHERE id = ?", id)
	return err
}

// ListRequestsByEmployee returns all requests for an employee, newest first.
func (s *Store) ListRequestsByEmployee(ctx context.Context, employeeID leave.EmployeeID) ([]*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE employee_id = ? ORDER BY created_at DESC`
	return s.queryRequests(ctx, query, employeeID)
}

// ListRequestsByState returns all requests in one state, oldest first.
func (s *Store) ListRequestsByState(ctx context.Context, state leave.RequestState) ([]*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM leave_requests WHERE state = ? ORDER BY created_at ASC`
	return s.queryRequests(ctx, query, state)
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]*leave.LeaveRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var requests []*leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(rows *sql.Rows) (*leave.LeaveRequest, error) {
	var (
		r             leave.LeaveRequest
		fromDate      string
		toDate        string
		duration      string
		justification sql.NullString
		attachmentID  sql.NullString
		mgrActor      sql.NullString
		mgrDecision   sql.NullString
		mgrComment    sql.NullString
		mgrAt         sql.NullString
		hrActor       sql.NullString
		hrDecision    sql.NullString
		hrComment     sql.NullString
		hrAt          sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := rows.Scan(
		&r.ID, &r.EmployeeID, &r.LeaveTypeID, &fromDate, &toDate, &duration,
		&justification, &attachmentID, &r.State,
		&mgrActor, &mgrDecision, &mgrComment, &mgrAt,
		&hrActor, &hrDecision, &hrComment, &hrAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan leave request: %w", err)
	}

	r.FromDate, _ = time.Parse(time.RFC3339, fromDate)
	r.ToDate, _ = time.Parse(time.RFC3339, toDate)
	r.DurationDays = leave.MustParseDays(duration)
	r.Justification = justification.String
	r.AttachmentID = attachmentID.String
	r.ManagerDecision = scanDecision(mgrActor, mgrDecision, mgrComment, mgrAt)
	r.HRDecision = scanDecision(hrActor, hrDecision, hrComment, hrAt)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

func decisionColumns(d *leave.DecisionRecord) (actor, decision, comment, at sql.NullString) {
	if d == nil {
		return
	}
	actor = sql.NullString{String: d.ActorID, Valid: true}
	decision = sql.NullString{String: string(d.Decision), Valid: true}
	comment = nullString(d.Comment)
	at = sql.NullString{String: d.DecidedAt.UTC().Format(time.RFC3339), Valid: true}
	return
}

func scanDecision(actor, decision, comment, at sql.NullString) *leave.DecisionRecord {
	if !decision.Valid {
		return nil
	}
	d := &leave.DecisionRecord{
		ActorID:  actor.String,
		Decision: leave.Decision(decision.String),
		Comment:  comment.String,
	}
	if at.Valid {
		d.DecidedAt, _ = time.Parse(time.RFC3339, at.String)
	}
	return d
}

// =============================================================================
// EMPLOYEE DIRECTORY (leave.EmployeeDirectory interface)
// =============================================================================

// SaveEmployee upserts an employee record.
func (s *Store) SaveEmployee(ctx context.Context, emp *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, name, email, hired_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hired_at = excluded.hired_at,
			active = excluded.active
	`

	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.Email,
		emp.HiredAt.Format(time.RFC3339),
		emp.Active,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetEmployee retrieves an employee by id.
func (s *Store) GetEmployee(ctx context.Context, id leave.EmployeeID) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emp leave.Employee
	var hiredAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, hired_at, active FROM employees WHERE id = ?",
		id,
	).Scan(&emp.ID, &emp.Name, &emp.Email, &hiredAt, &emp.Active)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("employee %s: %w", id, leave.ErrEmployeeNotFound)
	}
	if err != nil {
		return nil, err
	}

	emp.HiredAt, _ = time.Parse(time.RFC3339, hiredAt)
	return &emp, nil
}

// ListEmployees returns all employees.
func (s *Store) ListEmployees(ctx context.Context) ([]*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, hired_at, active FROM employees ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []*leave.Employee
	for rows.Next() {
		var emp leave.Employee
		var hiredAt string
		if err := rows.Scan(&emp.ID, &emp.Name, &emp.Email, &hiredAt, &emp.Active); err != nil {
			return nil, err
		}
		emp.HiredAt, _ = time.Parse(time.RFC3339, hiredAt)
		employees = append(employees, &emp)
	}
	return employees, rows.Err()
}

// DeleteEmployee removes an employee.
func (s *Store) DeleteEmployee(ctx context.Context, id leave.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", id)
	return err
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// SaveHoliday upserts a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (date, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(date, name) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		h.Date.Format("2006-01-02"), h.Name,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteHoliday removes a holiday.
func (s *Store) DeleteHoliday(ctx context.Context, date time.Time, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM holidays WHERE date = ? AND name = ?",
		date.Format("2006-01-02"), name,
	)
	return err
}

// ListHolidays returns holidays for one year, ordered by date.
func (s *Store) ListHolidays(ctx context.Context, year int) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT date, name FROM holidays WHERE strftime('%Y', date) = ? ORDER BY date ASC",
		fmt.Sprintf("%d", year),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var dateStr string
		if err := rows.Scan(&dateStr, &h.Name); err != nil {
			return nil, err
		}
		h.Date, _ = time.Parse("2006-01-02", dateStr)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// IsHoliday checks whether a date is on the calendar.
func (s *Store) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM holidays WHERE date = ?",
		date.Format("2006-01-02"),
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"reservations", "leave_requests", "entitlements", "policies", "employees", "holidays"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
