package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeTotals(t *testing.T) {
	totals, err := ComputeTotals([]LineInput{
		{Quantity: dec("10"), UnitPrice: dec("850")},
	}, dec("15"))
	require.NoError(t, err)
	require.True(t, totals.Subtotal.Equal(dec("8500.00")), "subtotal %s", totals.Subtotal)
	require.True(t, totals.TaxAmount.Equal(dec("1275.00")), "tax %s", totals.TaxAmount)
	require.True(t, totals.Total.Equal(dec("9775.00")), "total %s", totals.Total)
}

func TestComputeTotalsEmptyLines(t *testing.T) {
	totals, err := ComputeTotals(nil, dec("15"))
	require.NoError(t, err)
	require.True(t, totals.Subtotal.IsZero())
	require.True(t, totals.TaxAmount.IsZero())
	require.True(t, totals.Total.IsZero())
}

func TestComputeTotalsNegativeLineAccepted(t *testing.T) {
	totals, err := ComputeTotals([]LineInput{
		{Quantity: dec("2"), UnitPrice: dec("100")},
		{Quantity: dec("-1"), UnitPrice: dec("50")},
	}, dec("10"))
	require.NoError(t, err)
	require.True(t, totals.Subtotal.Equal(dec("150.00")))
	require.True(t, totals.TaxAmount.Equal(dec("15.00")))
	require.True(t, totals.Total.Equal(dec("165.00")))
}

func TestComputeTotalsNegativeTaxRateRejected(t *testing.T) {
	_, err := ComputeTotals(nil, dec("-5"))
	require.Error(t, err)
}

func TestComputeTotalsIdempotent(t *testing.T) {
	lines := []LineInput{
		{Quantity: dec("3.5"), UnitPrice: dec("19.99")},
		{Quantity: dec("7"), UnitPrice: dec("1.015")},
	}
	first, err := ComputeTotals(lines, dec("14.5"))
	require.NoError(t, err)
	second, err := ComputeTotals(lines, dec("14.5"))
	require.NoError(t, err)
	require.True(t, first.Subtotal.Equal(second.Subtotal))
	require.True(t, first.TaxAmount.Equal(second.TaxAmount))
	require.True(t, first.Total.Equal(second.Total))
}

func TestLineTotalRounding(t *testing.T) {
	require.True(t, LineTotal(dec("3"), dec("0.335")).Equal(dec("1.01")))
	require.True(t, LineTotal(dec("0"), dec("99.99")).IsZero())
}

func TestValidCurrency(t *testing.T) {
	require.True(t, ValidCurrency("ZAR"))
	require.True(t, ValidCurrency("USD"))
	require.False(t, ValidCurrency("ZZZ"))
	require.False(t, ValidCurrency(""))
}
