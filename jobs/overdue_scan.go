package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/probookkeeper/probookkeeper/internal/jobs"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// NewOverdueScanHandler builds the handler for TaskOverdueScan. Overdue
// is a read-time projection, never stored, so the scan only counts and
// reports; it does not mutate documents.
func NewOverdueScanHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	audit := internalShared.NewAuditLogger(pool)
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("overdue_scan")
		return tracker.End(runOverdueScan(ctx, pool, logger, metrics, audit))
	}
}

func runOverdueScan(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, audit *internalShared.AuditLogger) error {
	var invoices int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM invoices
		WHERE status IN ('SENT', 'PARTIALLY_PAID') AND due_date < CURRENT_DATE`).Scan(&invoices); err != nil {
		return err
	}
	var bills int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM bills
		WHERE status IN ('AWAITING_PAYMENT', 'PARTIALLY_PAID') AND due_date < CURRENT_DATE`).Scan(&bills); err != nil {
		return err
	}
	metrics.SetOverdue("invoices", invoices)
	metrics.SetOverdue("bills", bills)
	if err := audit.Record(ctx, internalShared.AuditLog{
		ActorID:  "system",
		Action:   "overdue_scan",
		Entity:   "documents",
		EntityID: "overdue",
		Meta:     map[string]any{"invoices": invoices, "bills": bills},
	}); err != nil {
		logger.Warn("overdue scan audit", slog.Any("error", err))
	}
	logger.Info("overdue scan complete",
		slog.Int("overdue_invoices", invoices),
		slog.Int("overdue_bills", bills))
	return nil
}
