package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/probookkeeper/probookkeeper/internal/jobs"
)

// NewLedgerIntegrityHandler builds the handler for TaskLedgerIntegrity.
// Postings are validated at write time; the scan exists to catch storage
// corruption and out-of-band writes, and fails loudly when it finds any.
func NewLedgerIntegrityHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("ledger_integrity")
		return tracker.End(runLedgerIntegrity(ctx, pool, logger))
	}
}

func runLedgerIntegrity(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	rows, err := pool.Query(ctx, `
		SELECT e.entry_number,
		       COALESCE(SUM(l.debit), 0) AS debits,
		       COALESCE(SUM(l.credit), 0) AS credits
		FROM journal_entries e
		JOIN journal_lines l ON l.entry_id = e.id
		WHERE e.status = 'POSTED'
		GROUP BY e.id, e.entry_number
		HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var unbalanced []string
	for rows.Next() {
		var number, debits, credits string
		if err := rows.Scan(&number, &debits, &credits); err != nil {
			return err
		}
		logger.Error("unbalanced posted entry",
			slog.String("entry", number),
			slog.String("debits", debits),
			slog.String("credits", credits))
		unbalanced = append(unbalanced, number)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(unbalanced) > 0 {
		return fmt.Errorf("ledger integrity scan found %d unbalanced posted entries", len(unbalanced))
	}
	logger.Info("ledger integrity scan clean")
	return nil
}
