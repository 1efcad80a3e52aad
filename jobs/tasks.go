package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerRecalculate rewrites the running balances of one pair.
	TaskLedgerRecalculate = "ledger:recalculate"
	// TaskLedgerIntegrity verifies stored balances, optionally repairing them.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// RecalculatePayload names the pair to recalculate.
type RecalculatePayload struct {
	ChartAccountID int64 `json:"chart_account_id"`
	OrganizationID int64 `json:"organization_id"`
}

// Pair converts the payload into a ledger pair.
func (p RecalculatePayload) Pair() ledger.Pair {
	return ledger.Pair{ChartAccountID: p.ChartAccountID, OrganizationID: p.OrganizationID}
}

// IntegrityPayload configures an integrity sweep. A nil Pair sweeps every
// pair holding entries.
type IntegrityPayload struct {
	Pair   *ledger.Pair `json:"pair,omitempty"`
	Repair bool         `json:"repair"`
}

// CleanupPayload configures the idempotency key retention.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// Retention returns the retention window, defaulting to seven days.
func (p CleanupPayload) Retention() time.Duration {
	if p.RetentionHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(p.RetentionHours) * time.Hour
}

// NewRecalculateTask builds a recalculation task for pair.
func NewRecalculateTask(pair ledger.Pair) (*asynq.Task, error) {
	if pair.ChartAccountID <= 0 || pair.OrganizationID <= 0 {
		return nil, fmt.Errorf("jobs: recalculate needs a complete pair, got %d/%d", pair.ChartAccountID, pair.OrganizationID)
	}
	return newTask(TaskLedgerRecalculate, RecalculatePayload{ChartAccountID: pair.ChartAccountID, OrganizationID: pair.OrganizationID})
}

// NewIntegrityTask builds an integrity sweep task.
func NewIntegrityTask(payload IntegrityPayload) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, payload)
}

// NewCleanupTask builds an idempotency cleanup task.
func NewCleanupTask(retentionHours int) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{RetentionHours: retentionHours})
}

func newTask(typeName string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typeName, body, asynq.Queue(QueueDefault)), nil
}
