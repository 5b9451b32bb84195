package bills

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// Repository defines data access for vendor bills.
type Repository interface {
	Create(ctx context.Context, bill Bill) error
	Get(ctx context.Context, id uuid.UUID) (Bill, error)
	List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Bill, int, error)
	Update(ctx context.Context, bill Bill, expectedRevision int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to BillStatus, approvedBy string, approvedAt *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddPayment(ctx context.Context, billID uuid.UUID, payment PaymentRecord, newStatus BillStatus, expectedRevision int64) error
	NextNumber(ctx context.Context, issue time.Time) (string, error)
}

// AuditPort records bill activity.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// IdempotencyPort guards repeatable mutations against double application.
type IdempotencyPort interface {
	CheckAndSet(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// LockPort serializes writers of one document.
type LockPort interface {
	Acquire(ctx context.Context, entity, id string) (func(), error)
}

// Service handles vendor bill business logic.
type Service struct {
	repo        Repository
	audit       AuditPort
	idempotency IdempotencyPort
	locks       LockPort
	now         func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, audit AuditPort, idempotency IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idempotency, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocks enables cross-process serialization of payment recording.
// Without it, concurrent writers fall through to the revision CAS.
func (s *Service) WithLocks(locks LockPort) {
	s.locks = locks
}

// Create stores a new draft bill with derived totals and a generated
// number.
func (s *Service) Create(ctx context.Context, input BillInput) (Bill, error) {
	if err := input.Validate(); err != nil {
		return Bill{}, err
	}
	number, err := s.repo.NextNumber(ctx, input.IssueDate)
	if err != nil {
		return Bill{}, err
	}
	now := s.now()
	bill := Bill{
		ID:            uuid.New(),
		Number:        number,
		VendorID:      input.VendorID,
		VendorName:    input.VendorName,
		VendorInvoice: input.VendorInvoice,
		IssueDate:     input.IssueDate,
		DueDate:       input.DueDate,
		Currency:      input.Currency,
		TaxRate:       input.TaxRate,
		Status:        StatusDraft,
		Notes:         input.Notes,
		Revision:      1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := applyItems(&bill, input.Items); err != nil {
		return Bill{}, err
	}
	if err := s.repo.Create(ctx, bill); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// Update replaces draft fields and recomputes totals.
func (s *Service) Update(ctx context.Context, input UpdateInput) (Bill, error) {
	current, err := s.repo.Get(ctx, input.BillID)
	if err != nil {
		return Bill{}, err
	}
	if !current.Status.Editable() {
		return Bill{}, fmt.Errorf("%w: only draft bills can be edited", internalShared.ErrInvalidStatus)
	}
	if err := input.Bill.Validate(); err != nil {
		return Bill{}, err
	}
	updated := current
	updated.VendorID = input.Bill.VendorID
	updated.VendorName = input.Bill.VendorName
	updated.VendorInvoice = input.Bill.VendorInvoice
	updated.IssueDate = input.Bill.IssueDate
	updated.DueDate = input.Bill.DueDate
	updated.Currency = input.Bill.Currency
	updated.TaxRate = input.Bill.TaxRate
	updated.Notes = input.Bill.Notes
	updated.UpdatedAt = s.now()
	if err := applyItems(&updated, input.Bill.Items); err != nil {
		return Bill{}, err
	}
	if err := s.repo.Update(ctx, updated, input.Revision); err != nil {
		return Bill{}, err
	}
	updated.Revision = input.Revision + 1
	return updated, nil
}

// Get returns one bill with its read-time status projection applied.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Bill, error) {
	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	bill.Status = DeriveStatus(bill.Status, bill.DueDate, s.now())
	return bill, nil
}

// ListPayments returns the append-only payment history of a bill.
func (s *Service) ListPayments(ctx context.Context, id uuid.UUID) ([]PaymentRecord, error) {
	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return bill.PaymentRecords, nil
}

// List returns bills for the page with derived statuses.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Bill, internalShared.Pagination, error) {
	now := s.now()
	bills, total, err := s.repo.List(ctx, filter, internalShared.NewPagination(page, perPage, 0), now)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	for i := range bills {
		bills[i].Status = DeriveStatus(bills[i].Status, bills[i].DueDate, now)
	}
	return bills, internalShared.NewPagination(page, perPage, total), nil
}

// Submit moves a draft bill into the approval queue.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, actorID string) (Bill, error) {
	return s.transition(ctx, id, StatusSubmitted, "bill.submit", "", actorID)
}

// Approve releases a submitted bill for payment. The approver is
// recorded on the bill.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, approverID string) (Bill, error) {
	if approverID == "" || approverID == "system" {
		return Bill{}, ErrApproverRequired
	}
	return s.transition(ctx, id, StatusAwaitingPayment, "bill.approve", approverID, approverID)
}

// Void cancels a bill. Paid bills cannot be voided.
func (s *Service) Void(ctx context.Context, id uuid.UUID, actorID string) (Bill, error) {
	return s.transition(ctx, id, StatusVoid, "bill.void", "", actorID)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to BillStatus, action, approvedBy, actorID string) (Bill, error) {
	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	if !bill.Status.CanTransitionTo(to) {
		return Bill{}, fmt.Errorf("%w: %s -> %s", internalShared.ErrInvalidStatus, bill.Status, to)
	}
	var approvedAt *time.Time
	if approvedBy != "" {
		at := s.now()
		approvedAt = &at
	}
	if err := s.repo.UpdateStatus(ctx, id, bill.Status, to, approvedBy, approvedAt); err != nil {
		return Bill{}, err
	}
	bill.Status = to
	bill.Revision++
	if approvedBy != "" {
		bill.ApprovedBy = approvedBy
		bill.ApprovedAt = approvedAt
	}
	s.recordAudit(ctx, actorID, action, bill.ID, map[string]any{"number": bill.Number})
	return bill, nil
}

// Delete removes a draft bill together with its lines.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if bill.Status != StatusDraft {
		return fmt.Errorf("%w: only draft bills can be deleted", internalShared.ErrInvalidStatus)
	}
	return s.repo.Delete(ctx, id)
}

// RecordPayment appends a payment record against an approved bill and
// derives the new status.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (Bill, error) {
	if !input.Amount.IsPositive() {
		return Bill{}, ErrNonPositivePayment
	}
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, "bill", input.BillID.String())
		if err != nil {
			return Bill{}, err
		}
		defer release()
	}
	bill, err := s.repo.Get(ctx, input.BillID)
	if err != nil {
		return Bill{}, err
	}
	if !bill.Status.CanApplyPayment() {
		return Bill{}, ErrPaymentNotAllowed
	}
	if input.Amount.GreaterThan(bill.AmountDue()) && !input.ConfirmOverpayment {
		return Bill{}, ErrOverpaymentNotConfirmed
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndSet(ctx, "bill_payments", input.IdempotencyKey); err != nil {
			return Bill{}, err
		}
	}

	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	payment := PaymentRecord{
		ID:        uuid.New(),
		Date:      date,
		Amount:    money.Round2(input.Amount),
		Method:    input.Method,
		Reference: input.Reference,
	}
	newStatus := StatusPartiallyPaid
	if bill.PaidAmount().Add(payment.Amount).GreaterThanOrEqual(bill.TotalAmount) {
		newStatus = StatusPaid
	}
	if err := s.repo.AddPayment(ctx, bill.ID, payment, newStatus, bill.Revision); err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Release(ctx, "bill_payments", input.IdempotencyKey)
		}
		return Bill{}, err
	}
	bill.PaymentRecords = append(bill.PaymentRecords, payment)
	bill.Status = newStatus
	bill.Revision++
	s.recordAudit(ctx, input.ActorID, "bill.payment", bill.ID, map[string]any{
		"number":     bill.Number,
		"amount":     payment.Amount.String(),
		"amount_due": bill.AmountDue().String(),
	})
	return bill, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if actorID == "" {
		actorID = "system"
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "bill",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

func applyItems(bill *Bill, items []LineItemInput) error {
	lines := make([]money.LineInput, 0, len(items))
	modelItems := make([]LineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, money.LineInput{Quantity: item.Quantity, UnitPrice: item.UnitPrice})
		modelItems = append(modelItems, LineItem{
			ID:          uuid.New(),
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       money.LineTotal(item.Quantity, item.UnitPrice),
		})
	}
	totals, err := money.ComputeTotals(lines, bill.TaxRate)
	if err != nil {
		return fmt.Errorf("%w: %v", internalShared.ErrValidation, err)
	}
	bill.Items = modelItems
	bill.Subtotal = totals.Subtotal
	bill.TaxAmount = totals.TaxAmount
	bill.TotalAmount = totals.Total
	return nil
}
