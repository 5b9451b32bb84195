package invoicing

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

type memoryInvoiceRepo struct {
	invoices       map[uuid.UUID]Invoice
	seq            int64
	failAddPayment error
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{invoices: make(map[uuid.UUID]Invoice)}
}

func (r *memoryInvoiceRepo) Create(ctx context.Context, inv Invoice) error {
	r.invoices[inv.ID] = inv
	return nil
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, fmt.Errorf("%w: invoice %s", internalShared.ErrNotFound, id)
	}
	return inv, nil
}

func (r *memoryInvoiceRepo) List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.invoices {
		if filter.CustomerID != uuid.Nil && inv.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && DeriveStatus(inv.Status, inv.DueDate, now) != filter.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, len(out), nil
}

func (r *memoryInvoiceRepo) Update(ctx context.Context, inv Invoice, expectedRevision int64) error {
	current, ok := r.invoices[inv.ID]
	if !ok {
		return fmt.Errorf("%w: invoice %s", internalShared.ErrNotFound, inv.ID)
	}
	if current.Revision != expectedRevision {
		return fmt.Errorf("%w: invoice %s", internalShared.ErrVersionConflict, inv.ID)
	}
	inv.Revision = expectedRevision + 1
	inv.PaymentRecords = current.PaymentRecords
	r.invoices[inv.ID] = inv
	return nil
}

func (r *memoryInvoiceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) error {
	inv, ok := r.invoices[id]
	if !ok || inv.Status != from {
		return fmt.Errorf("%w: invoice %s is not %s", internalShared.ErrInvalidStatus, id, from)
	}
	inv.Status = to
	inv.Revision++
	r.invoices[id] = inv
	return nil
}

func (r *memoryInvoiceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.invoices[id]; !ok {
		return fmt.Errorf("%w: invoice %s", internalShared.ErrNotFound, id)
	}
	delete(r.invoices, id)
	return nil
}

func (r *memoryInvoiceRepo) AddPayment(ctx context.Context, invoiceID uuid.UUID, payment PaymentRecord, newStatus InvoiceStatus, expectedRevision int64) error {
	if r.failAddPayment != nil {
		return r.failAddPayment
	}
	inv, ok := r.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("%w: invoice %s", internalShared.ErrNotFound, invoiceID)
	}
	if inv.Revision != expectedRevision || !inv.Status.CanApplyPayment() {
		return fmt.Errorf("%w: invoice %s", internalShared.ErrVersionConflict, invoiceID)
	}
	inv.PaymentRecords = append(inv.PaymentRecords, payment)
	inv.Status = newStatus
	inv.Revision++
	r.invoices[invoiceID] = inv
	return nil
}

func (r *memoryInvoiceRepo) NextNumber(ctx context.Context, issue time.Time) (string, error) {
	r.seq++
	return fmt.Sprintf("INV-%s-%04d", issue.Format("2006"), r.seq), nil
}

type memoryIdempotency struct {
	keys map[string]struct{}
}

func (g *memoryIdempotency) CheckAndSet(ctx context.Context, module, key string) error {
	if g.keys == nil {
		g.keys = make(map[string]struct{})
	}
	full := module + ":" + key
	if _, ok := g.keys[full]; ok {
		return fmt.Errorf("%w: key %s already used", internalShared.ErrIdempotencyConflict, key)
	}
	g.keys[full] = struct{}{}
	return nil
}

func (g *memoryIdempotency) Release(ctx context.Context, module, key string) error {
	delete(g.keys, module+":"+key)
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var testNow = time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memoryInvoiceRepo) {
	t.Helper()
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return testNow })
	return svc, repo
}

func sampleInput() InvoiceInput {
	return InvoiceInput{
		CustomerID:   uuid.New(),
		CustomerName: "Acme Trading",
		IssueDate:    time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		DueDate:      time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
		Currency:     "ZAR",
		TaxRate:      dec("15"),
		Items: []LineItemInput{
			{Description: "Consulting", Quantity: dec("5"), UnitPrice: dec("1700")},
		},
	}
}

func createSent(t *testing.T, svc *Service) Invoice {
	t.Helper()
	inv, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	inv, err = svc.Send(context.Background(), inv.ID)
	require.NoError(t, err)
	return inv
}

func TestCreateDerivesTotals(t *testing.T) {
	svc, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, "INV-2024-0001", inv.Number)
	require.Equal(t, StatusDraft, inv.Status)
	require.True(t, dec("8500.00").Equal(inv.Subtotal))
	require.True(t, dec("1275.00").Equal(inv.TaxAmount))
	require.True(t, dec("9775.00").Equal(inv.TotalAmount))
	require.True(t, dec("9775.00").Equal(inv.AmountDue()))
	require.EqualValues(t, 1, inv.Revision)
}

func TestCreateRejectsDueBeforeIssue(t *testing.T) {
	svc, _ := newTestService(t)

	input := sampleInput()
	input.DueDate = input.IssueDate.AddDate(0, 0, -1)
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestCreateRejectsNegativeTaxRate(t *testing.T) {
	svc, _ := newTestService(t)

	input := sampleInput()
	input.TaxRate = dec("-5")
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestCreateAllowsEmptyItemList(t *testing.T) {
	svc, _ := newTestService(t)

	input := sampleInput()
	input.Items = nil
	inv, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.True(t, inv.TotalAmount.IsZero())
}

func TestFullPaymentMarksPaid(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	paid, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("9775.00"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.True(t, paid.AmountDue().IsZero())
}

func TestPartialPaymentsAccumulate(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	after, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("5000.00"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, after.Status)
	require.True(t, dec("4775.00").Equal(after.AmountDue()))

	after, err = svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("4775.00"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, after.Status)
	require.True(t, after.AmountDue().IsZero())
	require.Len(t, after.PaymentRecords, 2)
}

func TestPaymentRejectedOnDraft(t *testing.T) {
	svc, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("100"),
	})
	require.ErrorIs(t, err, ErrPaymentNotAllowed)
}

func TestPaymentRejectedOnPaid(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("9775.00")})
	require.NoError(t, err)
	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("1")})
	require.ErrorIs(t, err, ErrPaymentNotAllowed)
}

func TestNonPositivePaymentRejected(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("0")})
	require.ErrorIs(t, err, ErrNonPositivePayment)
	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: inv.ID, Amount: dec("-50")})
	require.ErrorIs(t, err, ErrNonPositivePayment)
}

func TestOverpaymentRequiresConfirmation(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("10000.00"),
	})
	require.ErrorIs(t, err, ErrOverpaymentNotConfirmed)

	paid, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID:          inv.ID,
		Amount:             dec("10000.00"),
		ConfirmOverpayment: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, paid.Status)
	require.True(t, dec("-225.00").Equal(paid.AmountDue()))
}

func TestPaymentIdempotencyKey(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, nil, &memoryIdempotency{})
	svc.WithNow(func() time.Time { return testNow })
	inv := createSent(t, svc)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID:      inv.ID,
		Amount:         dec("5000.00"),
		IdempotencyKey: "pay-1",
	})
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID:      inv.ID,
		Amount:         dec("5000.00"),
		IdempotencyKey: "pay-1",
	})
	require.ErrorIs(t, err, internalShared.ErrIdempotencyConflict)
}

type memoryLock struct {
	held map[string]bool
}

func (l *memoryLock) Acquire(ctx context.Context, entity, id string) (func(), error) {
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	key := entity + ":" + id
	if l.held[key] {
		return nil, fmt.Errorf("%w: %s", internalShared.ErrLocked, key)
	}
	l.held[key] = true
	return func() { delete(l.held, key) }, nil
}

func TestPaymentSerializedByDocumentLock(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return testNow })
	locks := &memoryLock{}
	svc.WithLocks(locks)
	inv := createSent(t, svc)

	// Another writer holds the document.
	release, err := locks.Acquire(context.Background(), "invoice", inv.ID.String())
	require.NoError(t, err)
	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("100.00"),
	})
	require.ErrorIs(t, err, internalShared.ErrLocked)

	release()
	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID: inv.ID,
		Amount:    dec("100.00"),
	})
	require.NoError(t, err)
	require.Empty(t, locks.held)
}

func TestFailedPaymentReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryInvoiceRepo()
	svc := NewService(repo, nil, &memoryIdempotency{})
	svc.WithNow(func() time.Time { return testNow })
	inv := createSent(t, svc)

	repo.failAddPayment = fmt.Errorf("write timeout")
	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID:      inv.ID,
		Amount:         dec("5000.00"),
		IdempotencyKey: "pay-retry",
	})
	require.Error(t, err)

	// The key is released on repository failure so the caller can retry.
	repo.failAddPayment = nil
	got, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		InvoiceID:      inv.ID,
		Amount:         dec("5000.00"),
		IdempotencyKey: "pay-retry",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, got.Status)
}

func TestGetDerivesOverdue(t *testing.T) {
	svc, repo := newTestService(t)
	inv := createSent(t, svc)

	svc.WithNow(func() time.Time { return inv.DueDate.AddDate(0, 0, 5) })
	got, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, got.Status)

	// The projection is never written back.
	require.Equal(t, StatusSent, repo.invoices[inv.ID].Status)
}

func TestDueTodayIsNotOverdue(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	svc.WithNow(func() time.Time { return inv.DueDate.Add(23 * time.Hour) })
	got, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, got.Status)
}

func TestListFiltersDerivedOverdue(t *testing.T) {
	svc, _ := newTestService(t)
	onTime := createSent(t, svc)

	late := sampleInput()
	late.IssueDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	late.DueDate = time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	lateInv, err := svc.Create(context.Background(), late)
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), lateInv.ID)
	require.NoError(t, err)

	overdue, _, err := svc.List(context.Background(), ListFilter{Status: StatusOverdue}, 1, 20)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	require.Equal(t, lateInv.ID, overdue[0].ID)
	require.Equal(t, StatusOverdue, overdue[0].Status)

	sent, _, err := svc.List(context.Background(), ListFilter{Status: StatusSent}, 1, 20)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, onTime.ID, sent[0].ID)
}

func TestUpdateOnlyDrafts(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	_, err := svc.Update(context.Background(), UpdateInput{
		InvoiceID: inv.ID,
		Revision:  inv.Revision,
		Invoice:   sampleInput(),
	})
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}

func TestUpdateStaleRevision(t *testing.T) {
	svc, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), UpdateInput{
		InvoiceID: inv.ID,
		Revision:  inv.Revision + 5,
		Invoice:   sampleInput(),
	})
	require.ErrorIs(t, err, internalShared.ErrVersionConflict)
}

func TestUpdateRecomputesTotals(t *testing.T) {
	svc, _ := newTestService(t)

	inv, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)

	changed := sampleInput()
	changed.Items = []LineItemInput{
		{Description: "Consulting", Quantity: dec("2"), UnitPrice: dec("1000")},
	}
	updated, err := svc.Update(context.Background(), UpdateInput{
		InvoiceID: inv.ID,
		Revision:  inv.Revision,
		Invoice:   changed,
	})
	require.NoError(t, err)
	require.True(t, dec("2000.00").Equal(updated.Subtotal))
	require.True(t, dec("2300.00").Equal(updated.TotalAmount))
	require.EqualValues(t, 2, updated.Revision)
}

func TestVoidRules(t *testing.T) {
	svc, _ := newTestService(t)
	inv := createSent(t, svc)

	voided, err := svc.Void(context.Background(), inv.ID, "tester")
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)

	paid := createSent(t, svc)
	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{InvoiceID: paid.ID, Amount: dec("9775.00")})
	require.NoError(t, err)
	_, err = svc.Void(context.Background(), paid.ID, "tester")
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}

func TestDeleteOnlyDrafts(t *testing.T) {
	svc, _ := newTestService(t)

	draft, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), draft.ID))

	sent := createSent(t, svc)
	err = svc.Delete(context.Background(), sent.ID)
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}
