package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probookkeeper/probookkeeper/internal/platform/db"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

const invoiceColumns = `id, number, customer_id, customer_name, issue_date, due_date, subtotal, tax_rate, tax_amount, total_amount, currency, status, notes, revision, created_at, updated_at`

// PostgresRepository provides PostgreSQL backed persistence for invoices.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, inv Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO invoices (`+invoiceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			inv.ID, inv.Number, inv.CustomerID, inv.CustomerName, inv.IssueDate, inv.DueDate,
			inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.TotalAmount, inv.Currency, inv.Status,
			inv.Notes, inv.Revision, inv.CreatedAt, inv.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: invoice number %s", internalShared.ErrDuplicate, inv.Number)
			}
			return err
		}
		return insertItems(ctx, tx, inv.ID, inv.Items)
	})
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	var inv Invoice
	err := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id).
		Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.CustomerName, &inv.IssueDate, &inv.DueDate,
			&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.TotalAmount, &inv.Currency, &inv.Status,
			&inv.Notes, &inv.Revision, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, fmt.Errorf("%w: invoice %s", internalShared.ErrNotFound, id)
		}
		return Invoice{}, err
	}
	if inv.Items, err = r.listItems(ctx, id); err != nil {
		return Invoice{}, err
	}
	if inv.PaymentRecords, err = r.listPayments(ctx, id); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// List pages invoices. The OVERDUE filter is translated into the stored
// predicate (awaiting payment and past due) so filtering matches the
// read-time status projection.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Invoice, int, error) {
	where, args := listPredicate(filter, now)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT `+invoiceColumns+` FROM invoices%s ORDER BY issue_date DESC, number DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.CustomerName, &inv.IssueDate, &inv.DueDate,
			&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.TotalAmount, &inv.Currency, &inv.Status,
			&inv.Notes, &inv.Revision, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range invoices {
		if invoices[i].Items, err = r.listItems(ctx, invoices[i].ID); err != nil {
			return nil, 0, err
		}
		if invoices[i].PaymentRecords, err = r.listPayments(ctx, invoices[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return invoices, total, nil
}

func listPredicate(filter ListFilter, now time.Time) (string, []any) {
	var clauses []string
	var args []any
	today := midnight(now)
	switch filter.Status {
	case "":
	case StatusOverdue:
		args = append(args, today)
		clauses = append(clauses, fmt.Sprintf("status IN ('SENT', 'PARTIALLY_PAID') AND due_date < $%d", len(args)))
	case StatusSent, StatusPartiallyPaid:
		args = append(args, filter.Status, today)
		clauses = append(clauses, fmt.Sprintf("status = $%d AND due_date >= $%d", len(args)-1, len(args)))
	default:
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != uuid.Nil {
		args = append(args, filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Update replaces the invoice header and lines. The revision predicate
// rejects stale writers; only drafts are editable at the storage level
// too.
func (r *PostgresRepository) Update(ctx context.Context, inv Invoice, expectedRevision int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invoices
			SET customer_id = $1, customer_name = $2, issue_date = $3, due_date = $4,
			    subtotal = $5, tax_rate = $6, tax_amount = $7, total_amount = $8,
			    currency = $9, notes = $10, revision = revision + 1, updated_at = $11
			WHERE id = $12 AND revision = $13 AND status = 'DRAFT'`,
			inv.CustomerID, inv.CustomerName, inv.IssueDate, inv.DueDate,
			inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.TotalAmount,
			inv.Currency, inv.Notes, inv.UpdatedAt, inv.ID, expectedRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: invoice %s", internalShared.ErrVersionConflict, inv.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return err
		}
		return insertItems(ctx, tx, inv.ID, inv.Items)
	})
}

// UpdateStatus performs a compare-and-swap on the lifecycle status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices
		SET status = $1, revision = revision + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %s is not %s", internalShared.ErrInvalidStatus, id, from)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: invoice %s", internalShared.ErrNotFound, id)
		}
		return nil
	})
}

// AddPayment appends the payment record and swaps the invoice status in
// one transaction. The revision predicate serialises concurrent payment
// writers.
func (r *PostgresRepository) AddPayment(ctx context.Context, invoiceID uuid.UUID, payment PaymentRecord, newStatus InvoiceStatus, expectedRevision int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invoices
			SET status = $1, revision = revision + 1, updated_at = NOW()
			WHERE id = $2 AND revision = $3 AND status IN ('SENT', 'PARTIALLY_PAID')`,
			newStatus, invoiceID, expectedRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: invoice %s", internalShared.ErrVersionConflict, invoiceID)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO payment_records (id, invoice_id, date, amount, method, reference)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			payment.ID, invoiceID, payment.Date, payment.Amount, payment.Method, payment.Reference)
		return err
	})
}

// NextNumber allocates INV-{YEAR}-{SEQ}, one sequence per issue year.
func (r *PostgresRepository) NextNumber(ctx context.Context, issue time.Time) (string, error) {
	period := issue.Format("2006")
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq`, "INV", period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%04d", period, seq), nil
}

func (r *PostgresRepository) listItems(ctx context.Context, invoiceID uuid.UUID) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, description, quantity, unit_price, total
		FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *PostgresRepository) listPayments(ctx context.Context, invoiceID uuid.UUID) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, amount, method, reference
		FROM payment_records WHERE invoice_id = $1 ORDER BY date, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []PaymentRecord
	for rows.Next() {
		var p PaymentRecord
		if err := rows.Scan(&p.ID, &p.Date, &p.Amount, &p.Method, &p.Reference); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, items []LineItem) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, invoiceID, item.Description, item.Quantity, item.UnitPrice, item.Total); err != nil {
			return err
		}
	}
	return nil
}
