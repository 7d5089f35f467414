package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/mrp/internal/jobs"
	"github.com/odyssey-erp/mrp/internal/settlement"
)

// OverdueReporter summarises overdue invoices.
type OverdueReporter interface {
	OverdueSummary(ctx context.Context) (settlement.OverdueReport, error)
}

// OverdueScanJob periodically totals overdue invoice exposure.
type OverdueScanJob struct {
	Service OverdueReporter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueScanJob initialises the overdue scan handler.
func NewOverdueScanJob(service OverdueReporter, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the overdue scan.
func (j *OverdueScanJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("overdue scan: handler not configured")
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskSettlementOverdueScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report, err := j.Service.OverdueSummary(ctx)
	if err != nil {
		logger.Error("overdue scan failed", slog.Any("error", err))
		return err
	}
	outstanding, _ := report.Outstanding.Float64()
	j.Metrics.SetOverdue(report.Count, outstanding)
	logger.Info("completed overdue scan",
		slog.Int("overdue", report.Count),
		slog.String("outstanding", report.Outstanding.StringFixed(2)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
