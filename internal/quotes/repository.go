package quotes

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

	"github.com/probookkeeper/probookkeeper/internal/invoicing"
	"github.com/probookkeeper/probookkeeper/internal/platform/db"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

const quoteColumns = `id, number, customer_id, customer_name, issue_date, expiry_date, subtotal, tax_rate, tax_amount, total_amount, currency, status, notes, invoice_id, revision, created_at, updated_at`

// PostgresRepository provides PostgreSQL backed persistence for quotes.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, quote Quote) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO quotes (`+quoteColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			quote.ID, quote.Number, quote.CustomerID, quote.CustomerName, quote.IssueDate, quote.ExpiryDate,
			quote.Subtotal, quote.TaxRate, quote.TaxAmount, quote.TotalAmount, quote.Currency, quote.Status,
			quote.Notes, quote.InvoiceID, quote.Revision, quote.CreatedAt, quote.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: quote number %s", internalShared.ErrDuplicate, quote.Number)
			}
			return err
		}
		return insertItems(ctx, tx, quote.ID, quote.Items)
	})
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
	var q Quote
	err := r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id).
		Scan(&q.ID, &q.Number, &q.CustomerID, &q.CustomerName, &q.IssueDate, &q.ExpiryDate,
			&q.Subtotal, &q.TaxRate, &q.TaxAmount, &q.TotalAmount, &q.Currency, &q.Status,
			&q.Notes, &q.InvoiceID, &q.Revision, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, fmt.Errorf("%w: quote %s", internalShared.ErrNotFound, id)
		}
		return Quote{}, err
	}
	if q.Items, err = r.listItems(ctx, id); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// List pages quotes. The EXPIRED filter is translated into the stored
// predicate (sent and past expiry) so filtering matches the read-time
// projection.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Quote, int, error) {
	where, args := listPredicate(filter, now)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM quotes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT `+quoteColumns+` FROM quotes%s ORDER BY issue_date DESC, number DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var quotes []Quote
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.ID, &q.Number, &q.CustomerID, &q.CustomerName, &q.IssueDate, &q.ExpiryDate,
			&q.Subtotal, &q.TaxRate, &q.TaxAmount, &q.TotalAmount, &q.Currency, &q.Status,
			&q.Notes, &q.InvoiceID, &q.Revision, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range quotes {
		if quotes[i].Items, err = r.listItems(ctx, quotes[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return quotes, total, nil
}

func listPredicate(filter ListFilter, now time.Time) (string, []any) {
	var clauses []string
	var args []any
	today := midnight(now)
	switch filter.Status {
	case "":
	case StatusExpired:
		args = append(args, today)
		clauses = append(clauses, fmt.Sprintf("status = 'SENT' AND expiry_date < $%d", len(args)))
	case StatusSent:
		args = append(args, today)
		clauses = append(clauses, fmt.Sprintf("status = 'SENT' AND expiry_date >= $%d", len(args)))
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

// Update replaces the quote header and lines behind the revision
// predicate.
func (r *PostgresRepository) Update(ctx context.Context, quote Quote, expectedRevision int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE quotes
			SET customer_id = $1, customer_name = $2, issue_date = $3, expiry_date = $4,
			    subtotal = $5, tax_rate = $6, tax_amount = $7, total_amount = $8,
			    currency = $9, notes = $10, revision = revision + 1, updated_at = $11
			WHERE id = $12 AND revision = $13 AND status = 'DRAFT'`,
			quote.CustomerID, quote.CustomerName, quote.IssueDate, quote.ExpiryDate,
			quote.Subtotal, quote.TaxRate, quote.TaxAmount, quote.TotalAmount,
			quote.Currency, quote.Notes, quote.UpdatedAt, quote.ID, expectedRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: quote %s", internalShared.ErrVersionConflict, quote.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quote.ID); err != nil {
			return err
		}
		return insertItems(ctx, tx, quote.ID, quote.Items)
	})
}

// UpdateStatus performs a compare-and-swap on the lifecycle status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to QuoteStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quotes
		SET status = $1, revision = revision + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quote %s is not %s", internalShared.ErrInvalidStatus, id, from)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: quote %s", internalShared.ErrNotFound, id)
		}
		return nil
	})
}

// ConvertToInvoice inserts the invoice with a freshly allocated number
// and flips the quote to CONVERTED in the same transaction.
func (r *PostgresRepository) ConvertToInvoice(ctx context.Context, quoteID uuid.UUID, expectedRevision int64, inv invoicing.Invoice) (invoicing.Invoice, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		period := inv.IssueDate.Format("2006")
		var seq int64
		if err := tx.QueryRow(ctx, `
			INSERT INTO document_sequences (doc_type, period, seq)
			VALUES ($1, $2, 1)
			ON CONFLICT (doc_type, period)
			DO UPDATE SET seq = document_sequences.seq + 1
			RETURNING seq`, "INV", period).Scan(&seq); err != nil {
			return err
		}
		inv.Number = fmt.Sprintf("INV-%s-%04d", period, seq)

		if _, err := tx.Exec(ctx, `
			INSERT INTO invoices (id, number, customer_id, customer_name, issue_date, due_date, subtotal, tax_rate, tax_amount, total_amount, currency, status, notes, revision, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			inv.ID, inv.Number, inv.CustomerID, inv.CustomerName, inv.IssueDate, inv.DueDate,
			inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.TotalAmount, inv.Currency, inv.Status,
			inv.Notes, inv.Revision, inv.CreatedAt, inv.UpdatedAt); err != nil {
			return err
		}
		for _, item := range inv.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, total)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				item.ID, inv.ID, item.Description, item.Quantity, item.UnitPrice, item.Total); err != nil {
				return err
			}
		}

		tag, err := tx.Exec(ctx, `
			UPDATE quotes
			SET status = $1, invoice_id = $2, revision = revision + 1, updated_at = NOW()
			WHERE id = $3 AND revision = $4 AND status = 'ACCEPTED'`,
			StatusConverted, inv.ID, quoteID, expectedRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: quote %s", internalShared.ErrVersionConflict, quoteID)
		}
		return nil
	})
	if err != nil {
		return invoicing.Invoice{}, err
	}
	return inv, nil
}

// NextNumber allocates QUO-{YEAR}-{SEQ}, one sequence per issue year.
func (r *PostgresRepository) NextNumber(ctx context.Context, issue time.Time) (string, error) {
	period := issue.Format("2006")
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq`, "QUO", period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("QUO-%s-%04d", period, seq), nil
}

func (r *PostgresRepository) listItems(ctx context.Context, quoteID uuid.UUID) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, description, quantity, unit_price, total
		FROM quote_items WHERE quote_id = $1 ORDER BY id`, quoteID)
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

func insertItems(ctx context.Context, tx pgx.Tx, quoteID uuid.UUID, items []LineItem) error {
	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO quote_items (id, quote_id, description, quantity, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, quoteID, item.Description, item.Quantity, item.UnitPrice, item.Total); err != nil {
			return err
		}
	}
	return nil
}
