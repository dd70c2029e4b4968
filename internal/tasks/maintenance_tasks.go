package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"edumarket_echo/internal/models"
	"edumarket_echo/internal/services"
)

// defaultIdleMinutes mirrors the server's session idle timeout
const defaultIdleMinutes = 30

// SweepSessionsTaskDef retires sessions that have gone idle. The server
// also sweeps opportunistically on every authenticated request; this task
// covers quiet periods with no traffic.
type SweepSessionsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *SweepSessionsTaskDef) TaskID() string {
	return "sweep_idle_sessions"
}

// HandleExecution marks idle sessions inactive
func (t *SweepSessionsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	idleMinutes := intArg(task.Arguments, "idle_minutes", defaultIdleMinutes)

	governor := services.NewSessionGovernor(db, nil, time.Duration(idleMinutes)*time.Minute)
	swept, err := governor.SweepIdle()
	if err != nil {
		return nil, err
	}

	log.Printf("[Task: sweep_idle_sessions] retired %d idle sessions", swept)
	return map[string]interface{}{
		"status": "success",
		"swept":  swept,
	}, nil
}

// SweepSessionsTask is the singleton instance of SweepSessionsTaskDef
var SweepSessionsTask = &SweepSessionsTaskDef{}

// PurgeSessionsTaskDef hard-deletes session rows past the retention
// window. This is the only place session rows are physically removed.
type PurgeSessionsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *PurgeSessionsTaskDef) TaskID() string {
	return "purge_expired_sessions"
}

// HandleExecution deletes sessions older than the retention window
func (t *PurgeSessionsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	governor := services.NewSessionGovernor(db, nil, defaultIdleMinutes*time.Minute)
	purged, err := governor.PurgeExpired()
	if err != nil {
		return nil, err
	}

	log.Printf("[Task: purge_expired_sessions] purged %d sessions", purged)
	return map[string]interface{}{
		"status": "success",
		"purged": purged,
	}, nil
}

// PurgeSessionsTask is the singleton instance of PurgeSessionsTaskDef
var PurgeSessionsTask = &PurgeSessionsTaskDef{}

// RepollPaymentsTaskDef re-checks payment intents that have sat pending
// longer than expected, catching settlements whose webhook never arrived.
type RepollPaymentsTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *RepollPaymentsTaskDef) TaskID() string {
	return "repoll_stale_payments"
}

// HandleExecution asks the gateway for the truth about stale pending
// intents. A gateway error on one intent leaves it pending and moves on;
// the task reruns on its schedule anyway.
func (t *RepollPaymentsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	staleMinutes := intArg(task.Arguments, "stale_minutes", 15)
	limit := intArg(task.Arguments, "limit", 50)

	cutoff := time.Now().Add(-time.Duration(staleMinutes) * time.Minute)

	var intents []models.PaymentIntent
	err := db.
		Where("status = ? AND created_at < ?", models.PaymentIntentPending, cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&intents).Error
	if err != nil {
		return nil, err
	}

	gateway := services.NewMidtransGateway()
	reconciler := services.NewPaymentReconciler(db, gateway, services.NewEmailService())

	settled := 0
	for _, intent := range intents {
		if ctx.Err() != nil {
			break
		}

		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		updated, err := reconciler.VerifyPending(checkCtx, intent.CorrelationToken)
		cancel()
		if err != nil {
			log.Printf("[Task: repoll_stale_payments] %s: %v", intent.CorrelationToken, err)
			continue
		}
		if updated.Status.Terminal() {
			settled++
		}
	}

	log.Printf("[Task: repoll_stale_payments] checked %d intents, %d settled", len(intents), settled)
	return map[string]interface{}{
		"status":  "success",
		"checked": len(intents),
		"settled": settled,
	}, nil
}

// RepollPaymentsTask is the singleton instance of RepollPaymentsTaskDef
var RepollPaymentsTask = &RepollPaymentsTaskDef{}
