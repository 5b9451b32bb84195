package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart-of-accounts classifications.
type AccountType string

const (
	AccountTypeAsset       AccountType = "ASSET"
	AccountTypeLiability   AccountType = "LIABILITY"
	AccountTypeEquity      AccountType = "EQUITY"
	AccountTypeIncome      AccountType = "INCOME"
	AccountTypeExpense     AccountType = "EXPENSE"
	AccountTypeCostOfSales AccountType = "COST_OF_SALES"
)

// IsValid checks if the account type is known.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeIncome, AccountTypeExpense, AccountTypeCostOfSales:
		return true
	}
	return false
}

// Account is a chart-of-accounts row. Read-mostly reference data; the
// balance field is informational and not recomputed by posting.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	AccountNumber string          `json:"account_number"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	Description   string          `json:"description,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	IsSystem      bool            `json:"is_system"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
