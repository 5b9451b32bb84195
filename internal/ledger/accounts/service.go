package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// Repository defines data access for the chart of accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id uuid.UUID) (Account, error)
	List(ctx context.Context, accountType AccountType) ([]Account, error)
	Update(ctx context.Context, account Account) error
	Delete(ctx context.Context, id uuid.UUID) error
	HasJournalLines(ctx context.Context, id uuid.UUID) (bool, error)
}

// AccountInput groups fields for creating or updating an account.
type AccountInput struct {
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	Description   string          `json:"description,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
}

func (in AccountInput) validate() error {
	if in.AccountNumber == "" {
		return fmt.Errorf("%w: account number required", internalShared.ErrValidation)
	}
	if in.Name == "" {
		return fmt.Errorf("%w: account name required", internalShared.ErrValidation)
	}
	if !in.Type.IsValid() {
		return fmt.Errorf("%w: unknown account type %q", internalShared.ErrValidation, in.Type)
	}
	if in.Currency != "" && !money.ValidCurrency(in.Currency) {
		return fmt.Errorf("%w: unknown currency %q", internalShared.ErrValidation, in.Currency)
	}
	return nil
}

// Service handles chart-of-accounts logic.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, input AccountInput) (Account, error) {
	if err := input.validate(); err != nil {
		return Account{}, err
	}
	now := s.now()
	account := Account{
		ID:            uuid.New(),
		AccountNumber: input.AccountNumber,
		Name:          input.Name,
		Type:          input.Type,
		Description:   input.Description,
		Balance:       money.Round2(input.Balance),
		Currency:      input.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Account, error) {
	return s.repo.Get(ctx, id)
}

// List returns accounts, optionally filtered by type.
func (s *Service) List(ctx context.Context, accountType AccountType) ([]Account, error) {
	if accountType != "" && !accountType.IsValid() {
		return nil, fmt.Errorf("%w: unknown account type %q", internalShared.ErrValidation, accountType)
	}
	return s.repo.List(ctx, accountType)
}

// Update modifies account metadata. System accounts are immutable.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input AccountInput) (Account, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if current.IsSystem {
		return Account{}, fmt.Errorf("%w: system accounts cannot be modified", internalShared.ErrInvalidStatus)
	}
	if err := input.validate(); err != nil {
		return Account{}, err
	}
	current.AccountNumber = input.AccountNumber
	current.Name = input.Name
	current.Type = input.Type
	current.Description = input.Description
	current.Balance = money.Round2(input.Balance)
	current.Currency = input.Currency
	current.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, current); err != nil {
		return Account{}, err
	}
	return current, nil
}

// Delete removes an account that has no journal activity.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if account.IsSystem {
		return fmt.Errorf("%w: system accounts cannot be deleted", internalShared.ErrInvalidStatus)
	}
	used, err := s.repo.HasJournalLines(ctx, id)
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("%w: account %s has journal activity", internalShared.ErrInvalidStatus, account.AccountNumber)
	}
	return s.repo.Delete(ctx, id)
}
