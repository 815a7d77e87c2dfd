/*
scheduler.go - Automated accrual and period-reset scheduler

PURPOSE:
  Periodically walks all entitlements, runs accrual for leave types that
  accrue over time, and closes out periods whose reset date has passed.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Accrual and reset are idempotent, so overlapping runs are harmless
  - Skips leave types whose policy does not accrue
  - Period reset fires only once per boundary (the reset advances the date)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAccrualScheduler(store, ledger, resolver)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - leave/accrual.go: Accrual calculation
  - leave/ledger.go: RunAccrual and ResetPeriod
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/atlashr/leave-engine/leave"
)

// AccrualScheduler drives time-based entitlement changes.
type AccrualScheduler struct {
	Entitlements  leave.EntitlementStore
	Ledger        *leave.Ledger
	Resolver      leave.PolicyResolver
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(entitlements leave.EntitlementStore, ledger *leave.Ledger, resolver leave.PolicyResolver) *AccrualScheduler {
	return &AccrualScheduler{
		Entitlements:  entitlements,
		Ledger:        ledger,
		Resolver:      resolver,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (as *AccrualScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.wg.Add(1)

	go as.run()

	log.Printf("[Scheduler] Started with check interval: %v", as.CheckInterval)
}

// Stop stops the scheduler.
func (as *AccrualScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker != nil {
		as.ticker.Stop()
		close(as.stop)
		as.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

// RunNow triggers a single pass synchronously. Used by tests and ops tooling.
func (as *AccrualScheduler) RunNow() {
	as.checkAndProcess()
}

func (as *AccrualScheduler) run() {
	defer as.wg.Done()

	// Run immediately on start
	as.checkAndProcess()

	for {
		select {
		case <-as.ticker.C:
			as.checkAndProcess()
		case <-as.stop:
			return
		}
	}
}

func (as *AccrualScheduler) checkAndProcess() {
	ctx := context.Background()
	now := time.Now().UTC()

	log.Printf("[Scheduler] Checking entitlements at %v", now)

	entitlements, err := as.Entitlements.ListEntitlements(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing entitlements: %v", err)
		return
	}

	accruedCount := 0
	resetCount := 0
	skippedCount := 0

	for _, ent := range entitlements {
		policy, err := as.Resolver.Resolve(ctx, ent.LeaveTypeID)
		if err != nil {
			log.Printf("[Scheduler] Error resolving policy %s: %v", ent.LeaveTypeID, err)
			continue
		}

		// Period reset first so the accrual below starts the new period clean.
		if !ent.NextResetDate.IsZero() && now.After(ent.NextResetDate) {
			if _, err := as.Ledger.ResetPeriod(ctx, ent.EmployeeID, ent.LeaveTypeID, ent.NextResetDate); err != nil {
				log.Printf("[Scheduler] Error resetting period for %s/%s: %v", ent.EmployeeID, ent.LeaveTypeID, err)
				continue
			}
			resetCount++
		}

		if policy.AccrualMethod == leave.AccrualNone {
			skippedCount++
			continue
		}

		updated, err := as.Ledger.RunAccrual(ctx, ent.EmployeeID, ent.LeaveTypeID, now)
		if err != nil {
			log.Printf("[Scheduler] Error accruing for %s/%s: %v", ent.EmployeeID, ent.LeaveTypeID, err)
			continue
		}
		if !updated.AccruedRounded.Equal(ent.AccruedRounded) {
			accruedCount++
		}
	}

	if accruedCount > 0 || resetCount > 0 {
		log.Printf("[Scheduler] Completed: %d accrued, %d periods reset, %d skipped (no accrual)", accruedCount, resetCount, skippedCount)
	}
}
