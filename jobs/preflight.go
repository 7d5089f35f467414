package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/mrp/internal/jobs"
	"github.com/odyssey-erp/mrp/internal/stocktaking"
)

// Preflighter computes reservation conflicts for a stocktaking.
type Preflighter interface {
	Preflight(ctx context.Context, stocktakingID string) ([]stocktaking.ReconciliationResult, error)
}

// PreflightJob runs stocktaking preflight checks off the request path.
type PreflightJob struct {
	Service Preflighter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPreflightJob initialises the preflight handler.
func NewPreflightJob(service Preflighter, logger *slog.Logger, metrics *jobmetrics.Metrics) *PreflightJob {
	return &PreflightJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes a preflight for the stocktaking named in the payload.
func (j *PreflightJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("preflight: handler not configured")
	}
	var payload PreflightPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.StocktakingID == "" {
		return asynq.SkipRetry
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskStocktakingPreflight)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("stocktaking_id", payload.StocktakingID))
	conflicts, err := j.Service.Preflight(ctx, payload.StocktakingID)
	if err != nil {
		if errors.Is(err, stocktaking.ErrStocktakingNotFound) {
			logger.Warn("preflight skipped", slog.Any("error", err))
			return asynq.SkipRetry
		}
		logger.Error("preflight failed", slog.Any("error", err))
		return err
	}
	for _, c := range conflicts {
		logger.Warn("reservation conflict",
			slog.String("item_id", c.ItemID),
			slog.String("batch_id", c.BatchID),
			slog.String("shortage", c.Shortage.String()),
			slog.Int("reservations", len(c.Reservations)),
		)
	}
	j.Metrics.SetPreflightConflicts(payload.StocktakingID, len(conflicts))
	logger.Info("completed preflight",
		slog.Int("conflicts", len(conflicts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *PreflightJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
