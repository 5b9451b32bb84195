package aging

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InvoiceSource reads outstanding receivables: sent and partially paid
// invoices with their balance after payments.
type InvoiceSource struct {
	pool *pgxpool.Pool
}

// NewInvoiceSource constructs a receivables source.
func NewInvoiceSource(pool *pgxpool.Pool) *InvoiceSource {
	return &InvoiceSource{pool: pool}
}

func (s *InvoiceSource) OutstandingDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.number, i.customer_name, i.issue_date, i.due_date, i.currency,
		       CASE WHEN i.due_date < CURRENT_DATE THEN 'OVERDUE' ELSE i.status END AS status,
		       i.total_amount,
		       i.total_amount - COALESCE(SUM(p.amount), 0) AS amount_due
		FROM invoices i
		LEFT JOIN payment_records p ON p.invoice_id = i.id
		WHERE i.status IN ('SENT', 'PARTIALLY_PAID')
		GROUP BY i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Number, &d.PartyName, &d.IssueDate, &d.DueDate, &d.Currency, &d.Status, &d.TotalAmount, &d.AmountDue); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// BillSource reads outstanding payables: submitted, approved and
// partially paid bills with their balance after payments.
type BillSource struct {
	pool *pgxpool.Pool
}

// NewBillSource constructs a payables source.
func NewBillSource(pool *pgxpool.Pool) *BillSource {
	return &BillSource{pool: pool}
}

func (s *BillSource) OutstandingDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.number, b.vendor_name, b.issue_date, b.due_date, b.currency,
		       CASE WHEN b.status IN ('AWAITING_PAYMENT', 'PARTIALLY_PAID') AND b.due_date < CURRENT_DATE
		            THEN 'OVERDUE' ELSE b.status END AS status,
		       b.total_amount,
		       b.total_amount - COALESCE(SUM(p.amount), 0) AS amount_due
		FROM bills b
		LEFT JOIN bill_payments p ON p.bill_id = b.id
		WHERE b.status IN ('SUBMITTED', 'AWAITING_PAYMENT', 'PARTIALLY_PAID')
		GROUP BY b.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Number, &d.PartyName, &d.IssueDate, &d.DueDate, &d.Currency, &d.Status, &d.TotalAmount, &d.AmountDue); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
