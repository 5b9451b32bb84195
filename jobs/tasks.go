package jobs

import "github.com/hibiken/asynq"

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity re-verifies that every posted journal entry
	// still balances.
	TaskLedgerIntegrity = "ledger:integrity_scan"
	// TaskOverdueScan counts documents past their due date for alerting.
	TaskOverdueScan = "documents:overdue_scan"
)

// NewLedgerIntegrityTask constructs the integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewOverdueScanTask constructs the overdue scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueScan, nil)
}
