package quotes

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/probookkeeper/probookkeeper/internal/invoicing"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

type memoryQuoteRepo struct {
	quotes   map[uuid.UUID]Quote
	invoices map[uuid.UUID]invoicing.Invoice
	seq      int64
	invSeq   int64
}

func newMemoryQuoteRepo() *memoryQuoteRepo {
	return &memoryQuoteRepo{
		quotes:   make(map[uuid.UUID]Quote),
		invoices: make(map[uuid.UUID]invoicing.Invoice),
	}
}

func (r *memoryQuoteRepo) Create(ctx context.Context, quote Quote) error {
	r.quotes[quote.ID] = quote
	return nil
}

func (r *memoryQuoteRepo) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
	quote, ok := r.quotes[id]
	if !ok {
		return Quote{}, fmt.Errorf("%w: quote %s", internalShared.ErrNotFound, id)
	}
	return quote, nil
}

func (r *memoryQuoteRepo) List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Quote, int, error) {
	var out []Quote
	for _, q := range r.quotes {
		if filter.CustomerID != uuid.Nil && q.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && DeriveStatus(q.Status, q.ExpiryDate, now) != filter.Status {
			continue
		}
		out = append(out, q)
	}
	return out, len(out), nil
}

func (r *memoryQuoteRepo) Update(ctx context.Context, quote Quote, expectedRevision int64) error {
	current, ok := r.quotes[quote.ID]
	if !ok {
		return fmt.Errorf("%w: quote %s", internalShared.ErrNotFound, quote.ID)
	}
	if current.Revision != expectedRevision {
		return fmt.Errorf("%w: quote %s", internalShared.ErrVersionConflict, quote.ID)
	}
	quote.Revision = expectedRevision + 1
	r.quotes[quote.ID] = quote
	return nil
}

func (r *memoryQuoteRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to QuoteStatus) error {
	quote, ok := r.quotes[id]
	if !ok || quote.Status != from {
		return fmt.Errorf("%w: quote %s is not %s", internalShared.ErrInvalidStatus, id, from)
	}
	quote.Status = to
	quote.Revision++
	r.quotes[id] = quote
	return nil
}

func (r *memoryQuoteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.quotes[id]; !ok {
		return fmt.Errorf("%w: quote %s", internalShared.ErrNotFound, id)
	}
	delete(r.quotes, id)
	return nil
}

func (r *memoryQuoteRepo) ConvertToInvoice(ctx context.Context, quoteID uuid.UUID, expectedRevision int64, inv invoicing.Invoice) (invoicing.Invoice, error) {
	quote, ok := r.quotes[quoteID]
	if !ok || quote.Status != StatusAccepted || quote.Revision != expectedRevision {
		return invoicing.Invoice{}, fmt.Errorf("%w: quote %s", internalShared.ErrVersionConflict, quoteID)
	}
	r.invSeq++
	inv.Number = fmt.Sprintf("INV-%s-%04d", inv.IssueDate.Format("2006"), r.invSeq)
	r.invoices[inv.ID] = inv
	quote.Status = StatusConverted
	quote.InvoiceID = &inv.ID
	quote.Revision++
	r.quotes[quoteID] = quote
	return inv, nil
}

func (r *memoryQuoteRepo) NextNumber(ctx context.Context, issue time.Time) (string, error) {
	r.seq++
	return fmt.Sprintf("QUO-%s-%04d", issue.Format("2006"), r.seq), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var testNow = time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryQuoteRepo) {
	t.Helper()
	repo := newMemoryQuoteRepo()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return testNow })
	return svc, repo
}

func sampleInput() QuoteInput {
	return QuoteInput{
		CustomerID:   uuid.New(),
		CustomerName: "Acme Trading",
		IssueDate:    time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:   time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
		Currency:     "ZAR",
		TaxRate:      dec("15"),
		Items: []LineItemInput{
			{Description: "Consulting", Quantity: dec("5"), UnitPrice: dec("1700")},
		},
	}
}

func createAccepted(t *testing.T, svc *Service) Quote {
	t.Helper()
	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	quote, err = svc.Send(context.Background(), quote.ID)
	require.NoError(t, err)
	quote, err = svc.Accept(context.Background(), quote.ID, "customer")
	require.NoError(t, err)
	return quote
}

func TestCreateDerivesTotals(t *testing.T) {
	svc, _ := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, "QUO-2024-0001", quote.Number)
	require.Equal(t, StatusDraft, quote.Status)
	require.True(t, dec("9775.00").Equal(quote.TotalAmount))
}

func TestAcceptOnlySentQuotes(t *testing.T) {
	svc, _ := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), quote.ID, "customer")
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}

func TestExpiredQuoteCannotBeAccepted(t *testing.T) {
	svc, _ := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	quote, err = svc.Send(context.Background(), quote.ID)
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return quote.ExpiryDate.AddDate(0, 0, 1) })
	_, err = svc.Accept(context.Background(), quote.ID, "customer")
	require.ErrorIs(t, err, ErrQuoteExpired)

	// Rejection is still allowed for the record.
	rejected, err := svc.Reject(context.Background(), quote.ID, "customer")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
}

func TestGetDerivesExpired(t *testing.T) {
	svc, repo := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	quote, err = svc.Send(context.Background(), quote.ID)
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return quote.ExpiryDate.AddDate(0, 0, 2) })
	got, err := svc.Get(context.Background(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)
	require.Equal(t, StatusSent, repo.quotes[quote.ID].Status)
}

func TestMarkExpiredPersistsStatus(t *testing.T) {
	svc, repo := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	quote, err = svc.Send(context.Background(), quote.ID)
	require.NoError(t, err)

	// Still open: marking is rejected.
	_, err = svc.MarkExpired(context.Background(), quote.ID, "system")
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)

	svc.WithNow(func() time.Time { return quote.ExpiryDate.AddDate(0, 0, 3) })
	expired, err := svc.MarkExpired(context.Background(), quote.ID, "system")
	require.NoError(t, err)
	require.Equal(t, StatusExpired, expired.Status)
	require.Equal(t, StatusExpired, repo.quotes[quote.ID].Status)

	// Expired quotes are deletable.
	require.NoError(t, svc.Delete(context.Background(), quote.ID))
}

func TestExpiringTodayStillOpen(t *testing.T) {
	svc, _ := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	quote, err = svc.Send(context.Background(), quote.ID)
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return quote.ExpiryDate.Add(20 * time.Hour) })
	got, err := svc.Get(context.Background(), quote.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, got.Status)
}

func TestConvertAcceptedQuote(t *testing.T) {
	svc, repo := newTestService(t)
	quote := createAccepted(t, svc)

	inv, err := svc.Convert(context.Background(), quote.ID, "sales")
	require.NoError(t, err)
	require.Equal(t, invoicing.StatusDraft, inv.Status)
	require.Equal(t, quote.CustomerID, inv.CustomerID)
	require.True(t, quote.TotalAmount.Equal(inv.TotalAmount))
	require.Len(t, inv.Items, len(quote.Items))
	require.Equal(t, testNow, inv.IssueDate)
	require.Equal(t, testNow.AddDate(0, 0, ConversionTermDays), inv.DueDate)

	stored := repo.quotes[quote.ID]
	require.Equal(t, StatusConverted, stored.Status)
	require.NotNil(t, stored.InvoiceID)
	require.Equal(t, inv.ID, *stored.InvoiceID)

	// A quote converts at most once.
	_, err = svc.Convert(context.Background(), quote.ID, "sales")
	require.ErrorIs(t, err, ErrNotConvertible)
}

func TestConvertRequiresAccepted(t *testing.T) {
	svc, _ := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	_, err = svc.Convert(context.Background(), quote.ID, "sales")
	require.ErrorIs(t, err, ErrNotConvertible)
}

func TestDeleteRules(t *testing.T) {
	svc, _ := newTestService(t)

	draft, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), draft.ID))

	accepted := createAccepted(t, svc)
	err = svc.Delete(context.Background(), accepted.ID)
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)

	converted := createAccepted(t, svc)
	_, err = svc.Convert(context.Background(), converted.ID, "sales")
	require.NoError(t, err)
	err = svc.Delete(context.Background(), converted.ID)
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}

func TestUpdateRecomputesTotals(t *testing.T) {
	svc, _ := newTestService(t)

	quote, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)

	changed := sampleInput()
	changed.Items = []LineItemInput{
		{Description: "Consulting", Quantity: dec("1"), UnitPrice: dec("100")},
	}
	updated, err := svc.Update(context.Background(), UpdateInput{
		QuoteID:  quote.ID,
		Revision: quote.Revision,
		Quote:    changed,
	})
	require.NoError(t, err)
	require.True(t, dec("115.00").Equal(updated.TotalAmount))
}
