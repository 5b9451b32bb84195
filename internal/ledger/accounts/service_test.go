package accounts

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

type memoryAccountRepo struct {
	accounts map[uuid.UUID]Account
	used     map[uuid.UUID]bool
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts: make(map[uuid.UUID]Account),
		used:     make(map[uuid.UUID]bool),
	}
}

func (r *memoryAccountRepo) Create(ctx context.Context, account Account) error {
	r.accounts[account.ID] = account
	return nil
}

func (r *memoryAccountRepo) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("%w: account %s", internalShared.ErrNotFound, id)
	}
	return a, nil
}

func (r *memoryAccountRepo) List(ctx context.Context, accountType AccountType) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		if accountType != "" && a.Type != accountType {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryAccountRepo) Update(ctx context.Context, account Account) error {
	if _, ok := r.accounts[account.ID]; !ok {
		return fmt.Errorf("%w: account %s", internalShared.ErrNotFound, account.ID)
	}
	r.accounts[account.ID] = account
	return nil
}

func (r *memoryAccountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.accounts, id)
	return nil
}

func (r *memoryAccountRepo) HasJournalLines(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.used[id], nil
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := NewService(repo)

	account, err := svc.Create(ctx, AccountInput{
		AccountNumber: "1200",
		Name:          "Accounts Receivable",
		Type:          AccountTypeAsset,
		Currency:      "ZAR",
		Balance:       decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	require.Equal(t, "1200", account.AccountNumber)
	require.Equal(t, AccountTypeAsset, account.Type)
}

func TestCreateAccountRejectsUnknownType(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryAccountRepo())

	_, err := svc.Create(ctx, AccountInput{
		AccountNumber: "9999",
		Name:          "Mystery",
		Type:          AccountType("MYSTERY"),
	})
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestDeleteAccountWithActivityRefused(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := NewService(repo)

	account, err := svc.Create(ctx, AccountInput{
		AccountNumber: "4000",
		Name:          "Sales Revenue",
		Type:          AccountTypeIncome,
	})
	require.NoError(t, err)
	repo.used[account.ID] = true

	err = svc.Delete(ctx, account.ID)
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}

func TestUpdateSystemAccountRefused(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	svc := NewService(repo)

	id := uuid.New()
	repo.accounts[id] = Account{ID: id, AccountNumber: "3000", Name: "Retained Earnings", Type: AccountTypeEquity, IsSystem: true}

	_, err := svc.Update(ctx, id, AccountInput{AccountNumber: "3000", Name: "Renamed", Type: AccountTypeEquity})
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}
