package bills

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

type memoryBillRepo struct {
	bills map[uuid.UUID]Bill
	seq   int64
}

func newMemoryBillRepo() *memoryBillRepo {
	return &memoryBillRepo{bills: make(map[uuid.UUID]Bill)}
}

func (r *memoryBillRepo) Create(ctx context.Context, bill Bill) error {
	r.bills[bill.ID] = bill
	return nil
}

func (r *memoryBillRepo) Get(ctx context.Context, id uuid.UUID) (Bill, error) {
	bill, ok := r.bills[id]
	if !ok {
		return Bill{}, fmt.Errorf("%w: bill %s", internalShared.ErrNotFound, id)
	}
	return bill, nil
}

func (r *memoryBillRepo) List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Bill, int, error) {
	var out []Bill
	for _, b := range r.bills {
		if filter.VendorID != uuid.Nil && b.VendorID != filter.VendorID {
			continue
		}
		if filter.Status != "" && DeriveStatus(b.Status, b.DueDate, now) != filter.Status {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (r *memoryBillRepo) Update(ctx context.Context, bill Bill, expectedRevision int64) error {
	current, ok := r.bills[bill.ID]
	if !ok {
		return fmt.Errorf("%w: bill %s", internalShared.ErrNotFound, bill.ID)
	}
	if current.Revision != expectedRevision {
		return fmt.Errorf("%w: bill %s", internalShared.ErrVersionConflict, bill.ID)
	}
	bill.Revision = expectedRevision + 1
	bill.PaymentRecords = current.PaymentRecords
	r.bills[bill.ID] = bill
	return nil
}

func (r *memoryBillRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to BillStatus, approvedBy string, approvedAt *time.Time) error {
	bill, ok := r.bills[id]
	if !ok || bill.Status != from {
		return fmt.Errorf("%w: bill %s is not %s", internalShared.ErrInvalidStatus, id, from)
	}
	bill.Status = to
	if approvedBy != "" {
		bill.ApprovedBy = approvedBy
		bill.ApprovedAt = approvedAt
	}
	bill.Revision++
	r.bills[id] = bill
	return nil
}

func (r *memoryBillRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.bills[id]; !ok {
		return fmt.Errorf("%w: bill %s", internalShared.ErrNotFound, id)
	}
	delete(r.bills, id)
	return nil
}

func (r *memoryBillRepo) AddPayment(ctx context.Context, billID uuid.UUID, payment PaymentRecord, newStatus BillStatus, expectedRevision int64) error {
	bill, ok := r.bills[billID]
	if !ok {
		return fmt.Errorf("%w: bill %s", internalShared.ErrNotFound, billID)
	}
	if bill.Revision != expectedRevision || !bill.Status.CanApplyPayment() {
		return fmt.Errorf("%w: bill %s", internalShared.ErrVersionConflict, billID)
	}
	bill.PaymentRecords = append(bill.PaymentRecords, payment)
	bill.Status = newStatus
	bill.Revision++
	r.bills[billID] = bill
	return nil
}

func (r *memoryBillRepo) NextNumber(ctx context.Context, issue time.Time) (string, error) {
	r.seq++
	return fmt.Sprintf("BILL-%s-%04d", issue.Format("2006"), r.seq), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

var testNow = time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(newMemoryBillRepo(), nil, nil)
	svc.WithNow(func() time.Time { return testNow })
	return svc
}

func sampleInput() BillInput {
	return BillInput{
		VendorID:      uuid.New(),
		VendorName:    "Office Supplies Co",
		VendorInvoice: "OS-8841",
		IssueDate:     time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		DueDate:       time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC),
		Currency:      "ZAR",
		TaxRate:       dec("15"),
		Items: []LineItemInput{
			{Description: "Paper", Quantity: dec("10"), UnitPrice: dec("120")},
		},
	}
}

func createApproved(t *testing.T, svc *Service) Bill {
	t.Helper()
	bill, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	bill, err = svc.Submit(context.Background(), bill.ID, "clerk")
	require.NoError(t, err)
	bill, err = svc.Approve(context.Background(), bill.ID, "manager")
	require.NoError(t, err)
	return bill
}

func TestCreateDerivesTotals(t *testing.T) {
	svc := newTestService(t)

	bill, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	require.Equal(t, "BILL-2024-0001", bill.Number)
	require.Equal(t, StatusDraft, bill.Status)
	require.True(t, dec("1200.00").Equal(bill.Subtotal))
	require.True(t, dec("180.00").Equal(bill.TaxAmount))
	require.True(t, dec("1380.00").Equal(bill.TotalAmount))
}

func TestApprovalLifecycle(t *testing.T) {
	svc := newTestService(t)

	bill, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)

	// Payments require approval first.
	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{BillID: bill.ID, Amount: dec("100")})
	require.ErrorIs(t, err, ErrPaymentNotAllowed)

	// Approve straight from draft is illegal.
	_, err = svc.Approve(context.Background(), bill.ID, "manager")
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)

	bill, err = svc.Submit(context.Background(), bill.ID, "clerk")
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, bill.Status)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{BillID: bill.ID, Amount: dec("100")})
	require.ErrorIs(t, err, ErrPaymentNotAllowed)

	bill, err = svc.Approve(context.Background(), bill.ID, "manager")
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingPayment, bill.Status)
	require.Equal(t, "manager", bill.ApprovedBy)
	require.NotNil(t, bill.ApprovedAt)
}

func TestApproveRequiresIdentifiedActor(t *testing.T) {
	svc := newTestService(t)

	bill, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), bill.ID, "clerk")
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), bill.ID, "")
	require.ErrorIs(t, err, ErrApproverRequired)
	_, err = svc.Approve(context.Background(), bill.ID, "system")
	require.ErrorIs(t, err, ErrApproverRequired)
}

func TestPaymentsAccumulateToPaid(t *testing.T) {
	svc := newTestService(t)
	bill := createApproved(t, svc)

	after, err := svc.RecordPayment(context.Background(), RecordPaymentInput{BillID: bill.ID, Amount: dec("1000.00")})
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyPaid, after.Status)
	require.True(t, dec("380.00").Equal(after.AmountDue()))

	after, err = svc.RecordPayment(context.Background(), RecordPaymentInput{BillID: bill.ID, Amount: dec("380.00")})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, after.Status)
	require.True(t, after.AmountDue().IsZero())
}

func TestOverpaymentRequiresConfirmation(t *testing.T) {
	svc := newTestService(t)
	bill := createApproved(t, svc)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{BillID: bill.ID, Amount: dec("1500.00")})
	require.ErrorIs(t, err, ErrOverpaymentNotConfirmed)

	after, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		BillID:             bill.ID,
		Amount:             dec("1500.00"),
		ConfirmOverpayment: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, after.Status)
}

func TestGetDerivesOverdue(t *testing.T) {
	svc := newTestService(t)
	bill := createApproved(t, svc)

	svc.WithNow(func() time.Time { return bill.DueDate.AddDate(0, 0, 3) })
	got, err := svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, StatusOverdue, got.Status)
}

func TestSubmittedNeverOverdue(t *testing.T) {
	svc := newTestService(t)

	bill, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	bill, err = svc.Submit(context.Background(), bill.ID, "clerk")
	require.NoError(t, err)

	// Until approved, a bill awaits review rather than payment, so the
	// overdue projection does not apply.
	svc.WithNow(func() time.Time { return bill.DueDate.AddDate(0, 0, 30) })
	got, err := svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, got.Status)
}

func TestVoidAndDeleteRules(t *testing.T) {
	svc := newTestService(t)
	bill := createApproved(t, svc)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{BillID: bill.ID, Amount: dec("1380.00")})
	require.NoError(t, err)
	_, err = svc.Void(context.Background(), bill.ID, "manager")
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)

	draft, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), draft.ID))

	approved := createApproved(t, svc)
	err = svc.Delete(context.Background(), approved.ID)
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
	voided, err := svc.Void(context.Background(), approved.ID, "manager")
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)
}

func TestUpdateOnlyDrafts(t *testing.T) {
	svc := newTestService(t)
	bill := createApproved(t, svc)

	_, err := svc.Update(context.Background(), UpdateInput{BillID: bill.ID, Revision: bill.Revision, Bill: sampleInput()})
	require.ErrorIs(t, err, internalShared.ErrInvalidStatus)
}
