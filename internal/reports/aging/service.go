package aging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// cacheTTL keeps rendered reports hot for dashboards that poll. The
// window is short because payments shift documents between buckets.
const cacheTTL = 60 * time.Second

// Source yields the outstanding documents of one side of the ledger.
type Source interface {
	OutstandingDocuments(ctx context.Context) ([]Document, error)
}

// Service renders aged receivables and payables reports.
type Service struct {
	logger      *slog.Logger
	receivables Source
	payables    Source
	cache       *redis.Client
	now         func() time.Time
}

// NewService builds Service instance. cache may be nil, in which case
// every request recomputes.
func NewService(logger *slog.Logger, receivables, payables Source, cache *redis.Client) *Service {
	return &Service{
		logger:      logger,
		receivables: receivables,
		payables:    payables,
		cache:       cache,
		now:         time.Now,
	}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Receivables renders the aged receivables report as of today.
func (s *Service) Receivables(ctx context.Context) (Report, error) {
	return s.report(ctx, "receivables", s.receivables)
}

// Payables renders the aged payables report as of today.
func (s *Service) Payables(ctx context.Context) (Report, error) {
	return s.report(ctx, "payables", s.payables)
}

// Combined renders both reports as of the same date, fetching the two
// sides concurrently.
func (s *Service) Combined(ctx context.Context) (CombinedReport, error) {
	asOf := s.now()
	var receivables, payables Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		receivables, err = s.report(gctx, "receivables", s.receivables)
		return err
	})
	g.Go(func() error {
		var err error
		payables, err = s.report(gctx, "payables", s.payables)
		return err
	})
	if err := g.Wait(); err != nil {
		return CombinedReport{}, err
	}
	return CombinedReport{AsOf: asOf, Receivables: receivables, Payables: payables}, nil
}

func (s *Service) report(ctx context.Context, kind string, source Source) (Report, error) {
	asOf := s.now()
	key := fmt.Sprintf("aging:%s:%s", kind, asOf.Format("2006-01-02"))
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	docs, err := source.OutstandingDocuments(ctx)
	if err != nil {
		return Report{}, err
	}
	report := Classify(kind, docs, asOf)
	s.toCache(ctx, key, report)
	return report, nil
}

// Classify buckets the documents as of the given date. The flat listing
// is sorted most overdue first, stable on input order for ties; buckets
// are emitted in fixed order with the same per-bucket sorting.
func Classify(kind string, docs []Document, asOf time.Time) Report {
	listing := make([]Document, 0, len(docs))
	byBucket := make(map[string][]Document, len(BucketOrder))
	total := decimal.Zero
	for _, doc := range docs {
		doc.DaysOverdue = DaysOverdue(doc.DueDate, asOf)
		doc.Bucket = BucketFor(doc.DaysOverdue)
		listing = append(listing, doc)
		byBucket[doc.Bucket] = append(byBucket[doc.Bucket], doc)
		total = total.Add(doc.AmountDue)
	}
	sort.SliceStable(listing, func(i, j int) bool {
		return listing[i].DaysOverdue > listing[j].DaysOverdue
	})

	report := Report{AsOf: asOf, Kind: kind, Total: total, Documents: listing}
	for _, label := range BucketOrder {
		bucketDocs := byBucket[label]
		sort.SliceStable(bucketDocs, func(i, j int) bool {
			return bucketDocs[i].DaysOverdue > bucketDocs[j].DaysOverdue
		})
		bucketTotal := decimal.Zero
		for _, doc := range bucketDocs {
			bucketTotal = bucketTotal.Add(doc.AmountDue)
		}
		report.Buckets = append(report.Buckets, BucketSummary{
			Label:     label,
			Count:     len(bucketDocs),
			Total:     bucketTotal,
			Documents: bucketDocs,
		})
	}
	return report
}

func (s *Service) fromCache(ctx context.Context, key string) (Report, bool) {
	if s.cache == nil {
		return Report{}, false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		return Report{}, false
	}
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, false
	}
	return report, true
}

func (s *Service) toCache(ctx context.Context, key string, report Report) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		s.logger.Warn("cache aging report", slog.Any("error", err))
	}
}
