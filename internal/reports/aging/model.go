package aging

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bucket labels, ordered from least to most overdue.
const (
	BucketCurrent = "Current"
	Bucket1To30   = "1-30 Days"
	Bucket31To60  = "31-60 Days"
	Bucket61To90  = "61-90 Days"
	BucketOver90  = "90+ Days"
)

// BucketOrder lists the bucket labels in report order.
var BucketOrder = []string{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90}

// DaysOverdue returns whole days past due, comparing calendar dates so
// intra-day times never shift a document between buckets. Dates are
// rebuilt at UTC midnight, which keeps the subtraction an exact multiple
// of 24h even when the inputs carry zones with daylight shifts. Not yet
// due yields zero.
func DaysOverdue(dueDate, asOf time.Time) int {
	due := utcMidnight(dueDate)
	day := utcMidnight(asOf)
	days := int(day.Sub(due).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// BucketFor classifies a days-overdue count into its report bucket.
func BucketFor(daysOverdue int) string {
	switch {
	case daysOverdue <= 0:
		return BucketCurrent
	case daysOverdue <= 30:
		return Bucket1To30
	case daysOverdue <= 60:
		return Bucket31To60
	case daysOverdue <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

func utcMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Document is the report's view of one outstanding receivable or
// payable. Status carries the derived read-time status of the source
// module, so a sent invoice past due arrives here as OVERDUE.
type Document struct {
	ID          uuid.UUID       `json:"id"`
	Number      string          `json:"number"`
	PartyName   string          `json:"party_name"`
	IssueDate   time.Time       `json:"issue_date"`
	DueDate     time.Time       `json:"due_date"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	AmountDue   decimal.Decimal `json:"amount_due"`
	DaysOverdue int             `json:"days_overdue"`
	Bucket      string          `json:"bucket"`
}

// BucketSummary aggregates one bucket.
type BucketSummary struct {
	Label     string          `json:"label"`
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"total"`
	Documents []Document      `json:"documents"`
}

// Report is a full aged listing as of one date. Documents is the flat
// listing sorted most overdue first; Buckets groups the same documents
// for summary rendering.
type Report struct {
	AsOf      time.Time       `json:"as_of"`
	Kind      string          `json:"kind"`
	Total     decimal.Decimal `json:"total"`
	Documents []Document      `json:"documents"`
	Buckets   []BucketSummary `json:"buckets"`
}

// CombinedReport pairs receivables and payables as of the same date.
type CombinedReport struct {
	AsOf        time.Time `json:"as_of"`
	Receivables Report    `json:"receivables"`
	Payables    Report    `json:"payables"`
}
