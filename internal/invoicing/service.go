package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// Repository defines data access for invoices.
type Repository interface {
	Create(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, id uuid.UUID) (Invoice, error)
	List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Invoice, int, error)
	Update(ctx context.Context, inv Invoice, expectedRevision int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to InvoiceStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	AddPayment(ctx context.Context, invoiceID uuid.UUID, payment PaymentRecord, newStatus InvoiceStatus, expectedRevision int64) error
	NextNumber(ctx context.Context, issue time.Time) (string, error)
}

// AuditPort records invoice activity.
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

// Service handles invoice business logic.
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

// Create stores a new draft invoice with derived totals and a generated
// number.
func (s *Service) Create(ctx context.Context, input InvoiceInput) (Invoice, error) {
	if err := input.Validate(); err != nil {
		return Invoice{}, err
	}
	number, err := s.repo.NextNumber(ctx, input.IssueDate)
	if err != nil {
		return Invoice{}, err
	}
	now := s.now()
	inv := Invoice{
		ID:           uuid.New(),
		Number:       number,
		CustomerID:   input.CustomerID,
		CustomerName: input.CustomerName,
		IssueDate:    input.IssueDate,
		DueDate:      input.DueDate,
		Currency:     input.Currency,
		TaxRate:      input.TaxRate,
		Status:       StatusDraft,
		Notes:        input.Notes,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := applyItems(&inv, input.Items); err != nil {
		return Invoice{}, err
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Update replaces draft fields and recomputes totals. Only drafts are
// editable.
func (s *Service) Update(ctx context.Context, input UpdateInput) (Invoice, error) {
	current, err := s.repo.Get(ctx, input.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if !current.Status.Editable() {
		return Invoice{}, fmt.Errorf("%w: only draft invoices can be edited", internalShared.ErrInvalidStatus)
	}
	if err := input.Invoice.Validate(); err != nil {
		return Invoice{}, err
	}
	updated := current
	updated.CustomerID = input.Invoice.CustomerID
	updated.CustomerName = input.Invoice.CustomerName
	updated.IssueDate = input.Invoice.IssueDate
	updated.DueDate = input.Invoice.DueDate
	updated.Currency = input.Invoice.Currency
	updated.TaxRate = input.Invoice.TaxRate
	updated.Notes = input.Invoice.Notes
	updated.UpdatedAt = s.now()
	if err := applyItems(&updated, input.Invoice.Items); err != nil {
		return Invoice{}, err
	}
	if err := s.repo.Update(ctx, updated, input.Revision); err != nil {
		return Invoice{}, err
	}
	updated.Revision = input.Revision + 1
	return updated, nil
}

// Get returns one invoice with its read-time status projection applied.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Status = DeriveStatus(inv.Status, inv.DueDate, s.now())
	return inv, nil
}

// ListPayments returns the append-only payment history of an invoice.
func (s *Service) ListPayments(ctx context.Context, id uuid.UUID) ([]PaymentRecord, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return inv.PaymentRecords, nil
}

// List returns invoices for the page with derived statuses.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Invoice, internalShared.Pagination, error) {
	now := s.now()
	p := internalShared.NewPagination(page, perPage, 0)
	invoices, total, err := s.repo.List(ctx, filter, p, now)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	for i := range invoices {
		invoices[i].Status = DeriveStatus(invoices[i].Status, invoices[i].DueDate, now)
	}
	return invoices, internalShared.NewPagination(page, perPage, total), nil
}

// Send marks a draft invoice as sent to the customer.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return s.transition(ctx, id, StatusSent, "invoice.send", "")
}

// Void cancels an invoice. Paid invoices cannot be voided.
func (s *Service) Void(ctx context.Context, id uuid.UUID, actorID string) (Invoice, error) {
	return s.transition(ctx, id, StatusVoid, "invoice.void", actorID)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to InvoiceStatus, action, actorID string) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !inv.Status.CanTransitionTo(to) {
		return Invoice{}, fmt.Errorf("%w: %s -> %s", internalShared.ErrInvalidStatus, inv.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, inv.Status, to); err != nil {
		return Invoice{}, err
	}
	inv.Status = to
	inv.Revision++
	s.recordAudit(ctx, actorID, action, inv.ID, map[string]any{"number": inv.Number})
	return inv, nil
}

// Delete removes a draft invoice together with its lines.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != StatusDraft {
		return fmt.Errorf("%w: only draft invoices can be deleted", internalShared.ErrInvalidStatus)
	}
	return s.repo.Delete(ctx, id)
}

// RecordPayment appends a payment record and derives the new amount due
// and status. Payments are never removed; overpayment requires explicit
// caller confirmation but is not an error.
func (s *Service) RecordPayment(ctx context.Context, input RecordPaymentInput) (Invoice, error) {
	if !input.Amount.IsPositive() {
		return Invoice{}, ErrNonPositivePayment
	}
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, "invoice", input.InvoiceID.String())
		if err != nil {
			return Invoice{}, err
		}
		defer release()
	}
	inv, err := s.repo.Get(ctx, input.InvoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if !inv.Status.CanApplyPayment() {
		return Invoice{}, ErrPaymentNotAllowed
	}
	amountDue := inv.AmountDue()
	if input.Amount.GreaterThan(amountDue) && !input.ConfirmOverpayment {
		return Invoice{}, ErrOverpaymentNotConfirmed
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndSet(ctx, "invoice_payments", input.IdempotencyKey); err != nil {
			return Invoice{}, err
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
	paidAfter := inv.PaidAmount().Add(payment.Amount)
	newStatus := StatusPartiallyPaid
	if paidAfter.GreaterThanOrEqual(inv.TotalAmount) {
		newStatus = StatusPaid
	}
	if err := s.repo.AddPayment(ctx, inv.ID, payment, newStatus, inv.Revision); err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Release(ctx, "invoice_payments", input.IdempotencyKey)
		}
		return Invoice{}, err
	}
	inv.PaymentRecords = append(inv.PaymentRecords, payment)
	inv.Status = newStatus
	inv.Revision++
	s.recordAudit(ctx, input.ActorID, "invoice.payment", inv.ID, map[string]any{
		"number":     inv.Number,
		"amount":     payment.Amount.String(),
		"amount_due": inv.AmountDue().String(),
	})
	return inv, nil
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
		Entity:   "invoice",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

// applyItems recomputes line totals and document totals from the inputs.
func applyItems(inv *Invoice, items []LineItemInput) error {
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
	totals, err := money.ComputeTotals(lines, inv.TaxRate)
	if err != nil {
		return fmt.Errorf("%w: %v", internalShared.ErrValidation, err)
	}
	inv.Items = modelItems
	inv.Subtotal = totals.Subtotal
	inv.TaxAmount = totals.TaxAmount
	inv.TotalAmount = totals.Total
	return nil
}
