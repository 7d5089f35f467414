package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStocktakingPreflight recomputes reservation conflicts for a stocktaking.
	TaskStocktakingPreflight = "stocktaking:preflight"
	// TaskSettlementOverdueScan totals overdue invoice exposure.
	TaskSettlementOverdueScan = "settlement:overdue-scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// ErrMissingStocktaking reports a preflight payload without a stocktaking id.
var ErrMissingStocktaking = errors.New("jobs: stocktaking id required")

// PreflightPayload identifies the stocktaking to check.
type PreflightPayload struct {
	StocktakingID string `json:"stocktakingId"`
}

// NewPreflightTask constructs a preflight task.
func NewPreflightTask(stocktakingID string) (*asynq.Task, error) {
	if stocktakingID == "" {
		return nil, ErrMissingStocktaking
	}
	data, err := json.Marshal(PreflightPayload{StocktakingID: stocktakingID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStocktakingPreflight, data), nil
}

// OverdueScanPayload carries no options yet; the scan always covers every
// open invoice.
type OverdueScanPayload struct{}

// NewOverdueScanTask constructs the overdue scan task.
func NewOverdueScanTask() (*asynq.Task, error) {
	data, err := json.Marshal(OverdueScanPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSettlementOverdueScan, data), nil
}

// CleanupPayload sets the idempotency key retention.
type CleanupPayload struct {
	RetentionHours int `json:"retentionHours"`
}

// NewCleanupTask constructs the idempotency cleanup task.
func NewCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
