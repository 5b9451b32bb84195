package bills

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

const billColumns = `id, number, vendor_id, vendor_name, vendor_invoice, issue_date, due_date, subtotal, tax_rate, tax_amount, total_amount, currency, status, approved_by, approved_at, notes, revision, created_at, updated_at`

// PostgresRepository provides PostgreSQL backed persistence for bills.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, bill Bill) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bills (`+billColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			bill.ID, bill.Number, bill.VendorID, bill.VendorName, bill.VendorInvoice,
			bill.IssueDate, bill.DueDate, bill.Subtotal, bill.TaxRate, bill.TaxAmount, bill.TotalAmount,
			bill.Currency, bill.Status, bill.ApprovedBy, bill.ApprovedAt, bill.Notes,
			bill.Revision, bill.CreatedAt, bill.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: bill number %s", internalShared.ErrDuplicate, bill.Number)
			}
			return err
		}
		return insertItems(ctx, tx, bill.ID, bill.Items)
	})
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Bill, error) {
	var bill Bill
	err := r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, id).
		Scan(&bill.ID, &bill.Number, &bill.VendorID, &bill.VendorName, &bill.VendorInvoice,
			&bill.IssueDate, &bill.DueDate, &bill.Subtotal, &bill.TaxRate, &bill.TaxAmount, &bill.TotalAmount,
			&bill.Currency, &bill.Status, &bill.ApprovedBy, &bill.ApprovedAt, &bill.Notes,
			&bill.Revision, &bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, fmt.Errorf("%w: bill %s", internalShared.ErrNotFound, id)
		}
		return Bill{}, err
	}
	if bill.Items, err = r.listItems(ctx, id); err != nil {
		return Bill{}, err
	}
	if bill.PaymentRecords, err = r.listPayments(ctx, id); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// List pages bills, translating the OVERDUE filter into the stored
// predicate so filtering matches the read-time projection.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Bill, int, error) {
	where, args := listPredicate(filter, now)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM bills`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT `+billColumns+` FROM bills%s ORDER BY issue_date DESC, number DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		var b Bill
		if err := rows.Scan(&b.ID, &b.Number, &b.VendorID, &b.VendorName, &b.VendorInvoice,
			&b.IssueDate, &b.DueDate, &b.Subtotal, &b.TaxRate, &b.TaxAmount, &b.TotalAmount,
			&b.Currency, &b.Status, &b.ApprovedBy, &b.ApprovedAt, &b.Notes,
			&b.Revision, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range bills {
		if bills[i].Items, err = r.listItems(ctx, bills[i].ID); err != nil {
			return nil, 0, err
		}
		if bills[i].PaymentRecords, err = r.listPayments(ctx, bills[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return bills, total, nil
}

func listPredicate(filter ListFilter, now time.Time) (string, []any) {
	var clauses []string
	var args []any
	today := midnight(now)
	switch filter.Status {
	case "":
	case StatusOverdue:
		args = append(args, today)
		clauses = append(clauses, fmt.Sprintf("status IN ('AWAITING_PAYMENT', 'PARTIALLY_PAID') AND due_date < $%d", len(args)))
	case StatusAwaitingPayment, StatusPartiallyPaid:
		args = append(args, filter.Status, today)
		clauses = append(clauses, fmt.Sprintf("status = $%d AND due_date >= $%d", len(args)-1, len(args)))
	default:
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.VendorID != uuid.Nil {
		args = append(args, filter.VendorID)
		clauses = append(clauses, fmt.Sprintf("vendor_id = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Update replaces the bill header and lines behind the revision
// predicate.
func (r *PostgresRepository) Update(ctx context.Context, bill Bill, expectedRevision int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bills
			SET vendor_id = $1, vendor_name = $2, vendor_invoice = $3, issue_date = $4, due_date = $5,
			    subtotal = $6, tax_rate = $7, tax_amount = $8, total_amount = $9,
			    currency = $10, notes = $11, revision = revision + 1, updated_at = $12
			WHERE id = $13 AND revision = $14 AND status = 'DRAFT'`,
			bill.VendorID, bill.VendorName, bill.VendorInvoice, bill.IssueDate, bill.DueDate,
			bill.Subtotal, bill.TaxRate, bill.TaxAmount, bill.TotalAmount,
			bill.Currency, bill.Notes, bill.UpdatedAt, bill.ID, expectedRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: bill %s", internalShared.ErrVersionConflict, bill.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, bill.ID); err != nil {
			return err
		}
		return insertItems(ctx, tx, bill.ID, bill.Items)
	})
}

// UpdateStatus performs a compare-and-swap on the lifecycle status and
// stamps the approver when the transition is an approval.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to BillStatus, approvedBy string, approvedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bills
		SET status = $1,
		    approved_by = COALESCE(NULLIF($2, ''), approved_by),
		    approved_at = COALESCE($3, approved_at),
		    revision = revision + 1, updated_at = NOW()
		WHERE id = $4 AND status = $5`, to, approvedBy, approvedAt, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: bill %s is not %s", internalShared.ErrInvalidStatus, id, from)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM bills WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: bill %s", internalShared.ErrNotFound, id)
		}
		return nil
	})
}

// AddPayment appends the payment record and swaps the bill status in one
// transaction.
func (r *PostgresRepository) AddPayment(ctx context.Context, billID uuid.UUID, payment PaymentRecord, newStatus BillStatus, expectedRevision int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE bills
			SET status = $1, revision = revision + 1, updated_at = NOW()
			WHERE id = $2 AND revision = $3 AND status IN ('AWAITING_PAYMENT', 'PARTIALLY_PAID')`,
			newStatus, billID, expectedRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: bill %s", internalShared.ErrVersionConflict, billID)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO bill_payments (id, bill_id, date, amount, method, reference)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			payment.ID, billID, payment.Date, payment.Amount, payment.Method, payment.Reference)
		return err
	})
}

// NextNumber allocates BILL-{YEAR}-{SEQ}, one sequence per issue year.
func (r *PostgresRepository) NextNumber(ctx context.Context, issue time.Time) (string, error) {
	period := issue.Format("2006")
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq`, "BILL", period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BILL-%s-%04d", period, seq), nil
}

func (r *PostgresRepository) listItems(ctx context.Context, billID uuid.UUID) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, description, quantity, unit_price, total
		FROM bill_items WHERE bill_id = $1 ORDER BY id`, billID)
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

func (r *PostgresRepository) listPayments(ctx context.Context, billID uuid.UUID) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, date, amount, method, reference
		FROM bill_payments WHERE bill_id = $1 ORDER BY date, id`, billID)
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

func insertItems(ctx context.Context, tx pgx.Tx, billID uuid.UUID, items []LineItem) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bill_items (id, bill_id, description, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, billID, item.Description, item.Quantity, item.UnitPrice, item.Total); err != nil {
			return err
		}
	}
	return nil
}
