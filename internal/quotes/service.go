package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/probookkeeper/probookkeeper/internal/invoicing"
	"github.com/probookkeeper/probookkeeper/internal/money"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// ConversionTermDays is the payment term granted on invoices created
// from an accepted quote.
const ConversionTermDays = 30

// Repository defines data access for quotes.
type Repository interface {
	Create(ctx context.Context, quote Quote) error
	Get(ctx context.Context, id uuid.UUID) (Quote, error)
	List(ctx context.Context, filter ListFilter, page internalShared.Pagination, now time.Time) ([]Quote, int, error)
	Update(ctx context.Context, quote Quote, expectedRevision int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to QuoteStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ConvertToInvoice persists the invoice, allocates its number and
	// marks the quote converted in one transaction. It returns the
	// stored invoice with the allocated number.
	ConvertToInvoice(ctx context.Context, quoteID uuid.UUID, expectedRevision int64, invoice invoicing.Invoice) (invoicing.Invoice, error)
	NextNumber(ctx context.Context, issue time.Time) (string, error)
}

// AuditPort records quote activity.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service handles quote business logic.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service instance.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create stores a new draft quote with derived totals and a generated
// number.
func (s *Service) Create(ctx context.Context, input QuoteInput) (Quote, error) {
	if err := input.Validate(); err != nil {
		return Quote{}, err
	}
	number, err := s.repo.NextNumber(ctx, input.IssueDate)
	if err != nil {
		return Quote{}, err
	}
	now := s.now()
	quote := Quote{
		ID:           uuid.New(),
		Number:       number,
		CustomerID:   input.CustomerID,
		CustomerName: input.CustomerName,
		IssueDate:    input.IssueDate,
		ExpiryDate:   input.ExpiryDate,
		Currency:     input.Currency,
		TaxRate:      input.TaxRate,
		Status:       StatusDraft,
		Notes:        input.Notes,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := applyItems(&quote, input.Items); err != nil {
		return Quote{}, err
	}
	if err := s.repo.Create(ctx, quote); err != nil {
		return Quote{}, err
	}
	return quote, nil
}

// Update replaces draft fields and recomputes totals.
func (s *Service) Update(ctx context.Context, input UpdateInput) (Quote, error) {
	current, err := s.repo.Get(ctx, input.QuoteID)
	if err != nil {
		return Quote{}, err
	}
	if !current.Status.Editable() {
		return Quote{}, fmt.Errorf("%w: only draft quotes can be edited", internalShared.ErrInvalidStatus)
	}
	if err := input.Quote.Validate(); err != nil {
		return Quote{}, err
	}
	updated := current
	updated.CustomerID = input.Quote.CustomerID
	updated.CustomerName = input.Quote.CustomerName
	updated.IssueDate = input.Quote.IssueDate
	updated.ExpiryDate = input.Quote.ExpiryDate
	updated.Currency = input.Quote.Currency
	updated.TaxRate = input.Quote.TaxRate
	updated.Notes = input.Quote.Notes
	updated.UpdatedAt = s.now()
	if err := applyItems(&updated, input.Quote.Items); err != nil {
		return Quote{}, err
	}
	if err := s.repo.Update(ctx, updated, input.Revision); err != nil {
		return Quote{}, err
	}
	updated.Revision = input.Revision + 1
	return updated, nil
}

// Get returns one quote with its read-time expiry projection applied.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	quote.Status = DeriveStatus(quote.Status, quote.ExpiryDate, s.now())
	return quote, nil
}

// List returns quotes for the page with derived statuses.
func (s *Service) List(ctx context.Context, filter ListFilter, page, perPage int) ([]Quote, internalShared.Pagination, error) {
	now := s.now()
	quotes, total, err := s.repo.List(ctx, filter, internalShared.NewPagination(page, perPage, 0), now)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	for i := range quotes {
		quotes[i].Status = DeriveStatus(quotes[i].Status, quotes[i].ExpiryDate, now)
	}
	return quotes, internalShared.NewPagination(page, perPage, total), nil
}

// Send marks a draft quote as sent to the customer.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (Quote, error) {
	return s.transition(ctx, id, StatusSent, "quote.send", "")
}

// Accept marks a sent quote as accepted. Quotes past their expiry date
// cannot be accepted.
func (s *Service) Accept(ctx context.Context, id uuid.UUID, actorID string) (Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if DeriveStatus(quote.Status, quote.ExpiryDate, s.now()) == StatusExpired {
		return Quote{}, ErrQuoteExpired
	}
	return s.transition(ctx, id, StatusAccepted, "quote.accept", actorID)
}

// Reject marks a sent quote as rejected. Expired quotes may still be
// rejected for the record.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID string) (Quote, error) {
	return s.transition(ctx, id, StatusRejected, "quote.reject", actorID)
}

// MarkExpired persists the Expired status of a sent quote whose expiry
// date has passed. Reads already project this lazily; marking makes it
// permanent so the quote can be cleaned up.
func (s *Service) MarkExpired(ctx context.Context, id uuid.UUID, actorID string) (Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if DeriveStatus(quote.Status, quote.ExpiryDate, s.now()) != StatusExpired {
		return Quote{}, fmt.Errorf("%w: quote %s has not expired", internalShared.ErrInvalidStatus, quote.Number)
	}
	return s.transition(ctx, id, StatusExpired, "quote.expire", actorID)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to QuoteStatus, action, actorID string) (Quote, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quote{}, err
	}
	if !quote.Status.CanTransitionTo(to) {
		return Quote{}, fmt.Errorf("%w: %s -> %s", internalShared.ErrInvalidStatus, quote.Status, to)
	}
	if err := s.repo.UpdateStatus(ctx, id, quote.Status, to); err != nil {
		return Quote{}, err
	}
	quote.Status = to
	quote.Revision++
	s.recordAudit(ctx, actorID, action, quote.ID, map[string]any{"number": quote.Number})
	return quote, nil
}

// Convert turns an accepted quote into a draft invoice. The invoice
// inherits customer, currency, tax rate and items; its due date is the
// conversion day plus the standard payment term. Quote flip and invoice
// insert happen in one transaction so a crash cannot leave an accepted
// quote with a dangling invoice.
func (s *Service) Convert(ctx context.Context, id uuid.UUID, actorID string) (invoicing.Invoice, error) {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return invoicing.Invoice{}, err
	}
	if quote.Status != StatusAccepted {
		return invoicing.Invoice{}, ErrNotConvertible
	}

	now := s.now()
	inv := invoicing.Invoice{
		ID:           uuid.New(),
		CustomerID:   quote.CustomerID,
		CustomerName: quote.CustomerName,
		IssueDate:    now,
		DueDate:      now.AddDate(0, 0, ConversionTermDays),
		Currency:     quote.Currency,
		TaxRate:      quote.TaxRate,
		Subtotal:     quote.Subtotal,
		TaxAmount:    quote.TaxAmount,
		TotalAmount:  quote.TotalAmount,
		Status:       invoicing.StatusDraft,
		Notes:        fmt.Sprintf("Converted from quote %s", quote.Number),
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, item := range quote.Items {
		inv.Items = append(inv.Items, invoicing.LineItem{
			ID:          uuid.New(),
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
		})
	}

	created, err := s.repo.ConvertToInvoice(ctx, quote.ID, quote.Revision, inv)
	if err != nil {
		return invoicing.Invoice{}, err
	}
	s.recordAudit(ctx, actorID, "quote.convert", quote.ID, map[string]any{
		"number":  quote.Number,
		"invoice": created.Number,
	})
	return created, nil
}

// Delete removes a draft or rejected quote.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	quote, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !DeriveStatus(quote.Status, quote.ExpiryDate, s.now()).Deletable() {
		return fmt.Errorf("%w: only draft, rejected and expired quotes can be deleted", internalShared.ErrInvalidStatus)
	}
	return s.repo.Delete(ctx, id)
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
		Entity:   "quote",
		EntityID: id.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

func applyItems(quote *Quote, items []LineItemInput) error {
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
	totals, err := money.ComputeTotals(lines, quote.TaxRate)
	if err != nil {
		return fmt.Errorf("%w: %v", internalShared.ErrValidation, err)
	}
	quote.Items = modelItems
	quote.Subtotal = totals.Subtotal
	quote.TaxAmount = totals.TaxAmount
	quote.TotalAmount = totals.Total
	return nil
}
