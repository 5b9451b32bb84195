package journals

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/probookkeeper/probookkeeper/internal/ledger/shared"
	internalShared "github.com/probookkeeper/probookkeeper/internal/shared"
)

// Repository defines data access for journal entries.
type Repository interface {
	Create(ctx context.Context, entry JournalEntry) error
	Get(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	List(ctx context.Context, page internalShared.Pagination) ([]JournalEntry, int, error)
	Update(ctx context.Context, entry JournalEntry, expectedRevision int64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to JournalStatus, postedAt *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	MissingAccounts(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
	NextEntryNumber(ctx context.Context) (string, error)
}

// AuditPort records ledger activity.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service handles journal entry business logic.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create saves a new draft entry. Unbalanced entries are refused at save
// time, not just at post time.
func (s *Service) Create(ctx context.Context, input EntryInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if err := s.ensureAccounts(ctx, input); err != nil {
		return JournalEntry{}, err
	}
	now := s.now()
	number, err := s.repo.NextEntryNumber(ctx)
	if err != nil {
		return JournalEntry{}, err
	}
	debit, credit := input.Totals()
	entry := JournalEntry{
		ID:           uuid.New(),
		EntryNumber:  number,
		Date:         input.Date,
		Memo:         input.Memo,
		Currency:     input.Currency,
		Status:       JournalStatusDraft,
		TotalDebits:  debit,
		TotalCredits: credit,
		Revision:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        toLines(input.Lines),
	}
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Update replaces the lines of a draft entry. Posted and void entries are
// immutable.
func (s *Service) Update(ctx context.Context, input UpdateInput) (JournalEntry, error) {
	current, err := s.repo.Get(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !current.Status.Editable() {
		return JournalEntry{}, shared.ErrEntryImmutable
	}
	if err := input.Entry.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if err := s.ensureAccounts(ctx, input.Entry); err != nil {
		return JournalEntry{}, err
	}
	debit, credit := input.Entry.Totals()
	updated := current
	updated.Date = input.Entry.Date
	updated.Memo = input.Entry.Memo
	updated.Currency = input.Entry.Currency
	updated.TotalDebits = debit
	updated.TotalCredits = credit
	updated.UpdatedAt = s.now()
	updated.Lines = toLines(input.Entry.Lines)
	for i := range updated.Lines {
		updated.Lines[i].EntryID = updated.ID
	}
	if err := s.repo.Update(ctx, updated, input.Revision); err != nil {
		return JournalEntry{}, err
	}
	updated.Revision = input.Revision + 1
	return updated, nil
}

// Get returns one entry with lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return s.repo.Get(ctx, id)
}

// List returns entries for the requested page.
func (s *Service) List(ctx context.Context, page, perPage int) ([]JournalEntry, internalShared.Pagination, error) {
	p := internalShared.NewPagination(page, perPage, 0)
	entries, total, err := s.repo.List(ctx, p)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return entries, internalShared.NewPagination(page, perPage, total), nil
}

// Post transitions a draft entry to posted after re-checking the balance
// invariant against the stored lines.
func (s *Service) Post(ctx context.Context, input PostInput) (JournalEntry, error) {
	entry, err := s.repo.Get(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !entry.Status.CanTransitionTo(JournalStatusPosted) {
		return JournalEntry{}, shared.ErrEntryImmutable
	}
	stored := entryInputOf(entry)
	if err := stored.Validate(); err != nil {
		return JournalEntry{}, err
	}
	if err := s.ensureAccounts(ctx, stored); err != nil {
		return JournalEntry{}, err
	}
	postedAt := s.now()
	if err := s.repo.UpdateStatus(ctx, entry.ID, JournalStatusDraft, JournalStatusPosted, &postedAt); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = JournalStatusPosted
	entry.PostedAt = &postedAt
	s.recordAudit(ctx, input.ActorID, "journal.post", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"total":        entry.TotalDebits.String(),
	})
	return entry, nil
}

// Void transitions a posted entry to void. Void is terminal.
func (s *Service) Void(ctx context.Context, input VoidInput) (JournalEntry, error) {
	entry, err := s.repo.Get(ctx, input.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	if !entry.Status.CanTransitionTo(JournalStatusVoid) {
		return JournalEntry{}, shared.ErrEntryImmutable
	}
	if err := s.repo.UpdateStatus(ctx, entry.ID, JournalStatusPosted, JournalStatusVoid, nil); err != nil {
		return JournalEntry{}, err
	}
	entry.Status = JournalStatusVoid
	s.recordAudit(ctx, input.ActorID, "journal.void", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"reason":       input.Reason,
	})
	return entry, nil
}

// Delete removes a draft or void entry. Posted entries must be voided.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !entry.Status.Deletable() {
		return shared.ErrEntryNotDeletable
	}
	return s.repo.Delete(ctx, id)
}

func (s *Service) ensureAccounts(ctx context.Context, input EntryInput) error {
	missing, err := s.repo.MissingAccounts(ctx, input.AccountIDs())
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action string, entryID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: entryID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

func entryInputOf(entry JournalEntry) EntryInput {
	lines := make([]LineInput, 0, len(entry.Lines))
	for _, line := range entry.Lines {
		lines = append(lines, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		})
	}
	return EntryInput{Date: entry.Date, Memo: entry.Memo, Currency: entry.Currency, Lines: lines}
}

func toLines(inputs []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, JournalLine{
			ID:          uuid.New(),
			AccountID:   in.AccountID,
			Debit:       in.Debit,
			Credit:      in.Credit,
			Description: in.Description,
		})
	}
	return out
}
