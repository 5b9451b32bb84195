package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probookkeeper/probookkeeper/internal/platform/db"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// PostgresRepository provides PostgreSQL backed persistence for journals.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, entry JournalEntry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO journal_entries (id, entry_number, date, memo, currency, status, total_debits, total_credits, revision, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			entry.ID, entry.EntryNumber, entry.Date, entry.Memo, entry.Currency, entry.Status,
			entry.TotalDebits, entry.TotalCredits, entry.Revision, entry.CreatedAt, entry.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: entry number %s", internalShared.ErrDuplicate, entry.EntryNumber)
			}
			return err
		}
		return insertLines(ctx, tx, entry.ID, entry.Lines)
	})
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	var entry JournalEntry
	err := r.pool.QueryRow(ctx, `
		SELECT id, entry_number, date, memo, currency, status, total_debits, total_credits, revision, posted_at, created_at, updated_at
		FROM journal_entries WHERE id = $1`, id).
		Scan(&entry.ID, &entry.EntryNumber, &entry.Date, &entry.Memo, &entry.Currency, &entry.Status,
			&entry.TotalDebits, &entry.TotalCredits, &entry.Revision, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, fmt.Errorf("%w: journal entry %s", internalShared.ErrNotFound, id)
		}
		return JournalEntry{}, err
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *PostgresRepository) List(ctx context.Context, page internalShared.Pagination) ([]JournalEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM journal_entries`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_number, date, memo, currency, status, total_debits, total_credits, revision, posted_at, created_at, updated_at
		FROM journal_entries ORDER BY entry_number DESC LIMIT $1 OFFSET $2`, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.EntryNumber, &e.Date, &e.Memo, &e.Currency, &e.Status,
			&e.TotalDebits, &e.TotalCredits, &e.Revision, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range entries {
		lines, err := r.listLines(ctx, entries[i].ID)
		if err != nil {
			return nil, 0, err
		}
		entries[i].Lines = lines
	}
	return entries, total, nil
}

// Update replaces the entry header and lines. The revision predicate
// rejects stale writers.
func (r *PostgresRepository) Update(ctx context.Context, entry JournalEntry, expectedRevision int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE journal_entries
			SET date = $1, memo = $2, currency = $3, total_debits = $4, total_credits = $5,
			    revision = revision + 1, updated_at = $6
			WHERE id = $7 AND revision = $8 AND status = 'DRAFT'`,
			entry.Date, entry.Memo, entry.Currency, entry.TotalDebits, entry.TotalCredits,
			entry.UpdatedAt, entry.ID, expectedRevision)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: journal entry %s", internalShared.ErrVersionConflict, entry.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id = $1`, entry.ID); err != nil {
			return err
		}
		return insertLines(ctx, tx, entry.ID, entry.Lines)
	})
}

// UpdateStatus performs a compare-and-swap on the lifecycle status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to JournalStatus, postedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE journal_entries
		SET status = $1, posted_at = COALESCE($2, posted_at), revision = revision + 1, updated_at = NOW()
		WHERE id = $3 AND status = $4`, to, postedAt, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: journal entry %s is not %s", internalShared.ErrInvalidStatus, id, from)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM journal_entries WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: journal entry %s", internalShared.ErrNotFound, id)
		}
		return nil
	})
}

// MissingAccounts returns the subset of ids with no chart-of-accounts row.
func (r *PostgresRepository) MissingAccounts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM chart_of_accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	found := make(map[uuid.UUID]struct{}, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// NextEntryNumber allocates JE-{SEQ} from the shared sequence table.
func (r *PostgresRepository) NextEntryNumber(ctx context.Context) (string, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq`, "JE", "ALL").Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JE-%05d", seq), nil
}

func (r *PostgresRepository) listLines(ctx context.Context, entryID uuid.UUID) ([]JournalLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entry_id, account_id, debit, credit, description
		FROM journal_lines WHERE entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func insertLines(ctx context.Context, tx pgx.Tx, entryID uuid.UUID, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO journal_lines (id, entry_id, account_id, debit, credit, description)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			line.ID, entryID, line.AccountID, line.Debit, line.Credit, line.Description); err != nil {
			return err
		}
	}
	return nil
}
