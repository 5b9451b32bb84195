// Package money holds the monetary arithmetic shared by every financial
// document. All amounts are shopspring decimals rounded to two places at
// computation boundaries so repeated recomputation never drifts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Round2 rounds half-up to currency precision.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal computes quantity times unit price at currency precision.
// Negative quantities and prices are accepted; they model credit-note
// style refund lines.
func LineTotal(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return Round2(quantity.Mul(unitPrice))
}

// LineInput is the calculator view of a document line.
type LineInput struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Totals groups the derived amounts of a document.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// ComputeTotals derives subtotal, tax and grand total from the lines and
// the document-level tax rate percentage. An empty line list yields zero
// totals. The tax rate must not be negative.
func ComputeTotals(lines []LineInput, taxRate decimal.Decimal) (Totals, error) {
	if taxRate.IsNegative() {
		return Totals{}, fmt.Errorf("money: tax rate must not be negative, got %s", taxRate)
	}
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(LineTotal(line.Quantity, line.UnitPrice))
	}
	subtotal = Round2(subtotal)
	tax := Round2(subtotal.Mul(taxRate).Div(decimal.NewFromInt(100)))
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}, nil
}

// ValidCurrency reports whether code is a well-formed ISO 4217 unit.
func ValidCurrency(code string) bool {
	_, err := currency.ParseISO(code)
	return err == nil
}
