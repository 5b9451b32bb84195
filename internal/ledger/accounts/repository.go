package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// PostgresRepository provides PostgreSQL backed persistence for accounts.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const accountColumns = `id, account_number, name, type, description, balance, currency, is_system, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chart_of_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.AccountNumber, account.Name, account.Type, account.Description,
		account.Balance, account.Currency, account.IsSystem, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: account number %s", internalShared.ErrDuplicate, account.AccountNumber)
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM chart_of_accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.AccountNumber, &a.Name, &a.Type, &a.Description, &a.Balance, &a.Currency, &a.IsSystem, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: account %s", internalShared.ErrNotFound, id)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context, accountType AccountType) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM chart_of_accounts`
	args := []any{}
	if accountType != "" {
		query += ` WHERE type = $1`
		args = append(args, accountType)
	}
	query += ` ORDER BY account_number`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.Name, &a.Type, &a.Description, &a.Balance, &a.Currency, &a.IsSystem, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, account Account) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE chart_of_accounts
		SET account_number = $1, name = $2, type = $3, description = $4, balance = $5, currency = $6, updated_at = $7
		WHERE id = $8`,
		account.AccountNumber, account.Name, account.Type, account.Description,
		account.Balance, account.Currency, account.UpdatedAt, account.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", internalShared.ErrNotFound, account.ID)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chart_of_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", internalShared.ErrNotFound, id)
	}
	return nil
}

func (r *PostgresRepository) HasJournalLines(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM journal_lines WHERE account_id = $1)`, id).Scan(&exists)
	return exists, err
}
