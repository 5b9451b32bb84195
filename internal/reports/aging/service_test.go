package aging

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
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

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysOverdue(t *testing.T) {
	asOf := day(2024, 8, 5)
	require.Equal(t, 16, DaysOverdue(day(2024, 7, 20), asOf))
	require.Equal(t, 0, DaysOverdue(day(2024, 8, 5), asOf))

	// Not yet due clamps to zero, never negative.
	require.Equal(t, 0, DaysOverdue(day(2024, 8, 15), asOf))

	// Intra-day times never change the count.
	require.Equal(t, 16, DaysOverdue(
		time.Date(2024, 7, 20, 23, 59, 0, 0, time.UTC),
		time.Date(2024, 8, 5, 0, 1, 0, 0, time.UTC)))

	// Calendar dates count even across a daylight-shortened span, where
	// the wall-clock difference between local midnights is only 47h.
	require.Equal(t, 2, DaysOverdue(
		time.Date(2024, 3, 10, 0, 0, 0, 0, time.FixedZone("EST", -5*3600)),
		time.Date(2024, 3, 12, 0, 0, 0, 0, time.FixedZone("EDT", -4*3600))))
}

func TestClassifyNeverPublishesNegativeDays(t *testing.T) {
	asOf := day(2024, 8, 5)
	report := Classify("receivables", []Document{doc("INV-1", day(2024, 8, 15), "500.00")}, asOf)

	require.Len(t, report.Documents, 1)
	require.Equal(t, 0, report.Documents[0].DaysOverdue)
	require.Equal(t, BucketCurrent, report.Documents[0].Bucket)

	raw, err := json.Marshal(report)
	require.NoError(t, err)
	require.NotContains(t, string(raw), `"days_overdue":-`)
}

func TestBucketBoundaries(t *testing.T) {
	cases := []struct {
		days   int
		bucket string
	}{
		{-5, BucketCurrent},
		{0, BucketCurrent},
		{1, Bucket1To30},
		{16, Bucket1To30},
		{30, Bucket1To30},
		{31, Bucket31To60},
		{60, Bucket31To60},
		{61, Bucket61To90},
		{90, Bucket61To90},
		{91, BucketOver90},
		{400, BucketOver90},
	}
	for _, tc := range cases {
		require.Equal(t, tc.bucket, BucketFor(tc.days), "days=%d", tc.days)
	}
}

func TestBucketMonotonicity(t *testing.T) {
	// Increasing days overdue never moves a document to an earlier
	// bucket.
	rank := map[string]int{}
	for i, label := range BucketOrder {
		rank[label] = i
	}
	prev := 0
	for days := -3; days <= 200; days++ {
		r := rank[BucketFor(days)]
		require.GreaterOrEqual(t, r, prev, "days=%d", days)
		prev = r
	}
}

func doc(number string, due time.Time, amount string) Document {
	return Document{
		ID:          uuid.New(),
		Number:      number,
		PartyName:   "Acme Trading",
		IssueDate:   due.AddDate(0, 0, -30),
		DueDate:     due,
		Currency:    "ZAR",
		Status:      "SENT",
		TotalAmount: dec(amount),
		AmountDue:   dec(amount),
	}
}

func TestClassify(t *testing.T) {
	asOf := day(2024, 8, 5)
	docs := []Document{
		doc("INV-2024-0001", day(2024, 7, 20), "9775.00"),  // 16 days
		doc("INV-2024-0002", day(2024, 8, 10), "500.00"),   // not yet due
		doc("INV-2024-0003", day(2024, 6, 1), "1200.00"),   // 65 days
		doc("INV-2024-0004", day(2024, 7, 1), "300.00"),    // 35 days
		doc("INV-2024-0005", day(2023, 12, 1), "10000.00"), // way past
	}

	report := Classify("receivables", docs, asOf)
	require.Equal(t, "receivables", report.Kind)
	require.True(t, dec("21775.00").Equal(report.Total))
	require.Len(t, report.Buckets, 5)

	byLabel := map[string]BucketSummary{}
	for _, b := range report.Buckets {
		byLabel[b.Label] = b
	}
	require.Equal(t, 1, byLabel[BucketCurrent].Count)
	require.Equal(t, 1, byLabel[Bucket1To30].Count)
	require.Equal(t, "INV-2024-0001", byLabel[Bucket1To30].Documents[0].Number)
	require.Equal(t, 16, byLabel[Bucket1To30].Documents[0].DaysOverdue)
	require.Equal(t, 1, byLabel[Bucket31To60].Count)
	require.Equal(t, 1, byLabel[Bucket61To90].Count)
	require.Equal(t, 1, byLabel[BucketOver90].Count)
	require.True(t, dec("10000.00").Equal(byLabel[BucketOver90].Total))

	// The flat listing keeps the projection fields and runs most
	// overdue first.
	require.Len(t, report.Documents, 5)
	require.Equal(t, "INV-2024-0005", report.Documents[0].Number)
	require.Equal(t, "INV-2024-0002", report.Documents[4].Number)
	first := report.Documents[0]
	require.Equal(t, "SENT", first.Status)
	require.True(t, dec("10000.00").Equal(first.TotalAmount))
	require.Equal(t, first.DueDate.AddDate(0, 0, -30), first.IssueDate)
}

func TestClassifySortsMostOverdueFirst(t *testing.T) {
	asOf := day(2024, 8, 5)
	docs := []Document{
		doc("A", day(2024, 7, 30), "10"), // 6 days
		doc("B", day(2024, 7, 10), "10"), // 26 days
		doc("C", day(2024, 7, 20), "10"), // 16 days
	}
	report := Classify("receivables", docs, asOf)
	bucket := report.Buckets[1]
	require.Equal(t, Bucket1To30, bucket.Label)
	require.Equal(t, []string{"B", "C", "A"}, []string{
		bucket.Documents[0].Number,
		bucket.Documents[1].Number,
		bucket.Documents[2].Number,
	})
	require.Equal(t, []string{"B", "C", "A"}, []string{
		report.Documents[0].Number,
		report.Documents[1].Number,
		report.Documents[2].Number,
	})
}

type staticSource struct {
	docs  []Document
	calls int
}

func (s *staticSource) OutstandingDocuments(ctx context.Context) ([]Document, error) {
	s.calls++
	return s.docs, nil
}

func TestCombinedReport(t *testing.T) {
	asOf := day(2024, 8, 5)
	receivables := &staticSource{docs: []Document{doc("INV-1", day(2024, 7, 20), "100.00")}}
	payables := &staticSource{docs: []Document{doc("BILL-1", day(2024, 6, 1), "40.00")}}

	svc := NewService(slog.Default(), receivables, payables, nil)
	svc.WithNow(func() time.Time { return asOf })

	combined, err := svc.Combined(context.Background())
	require.NoError(t, err)
	require.True(t, dec("100.00").Equal(combined.Receivables.Total))
	require.True(t, dec("40.00").Equal(combined.Payables.Total))
	require.Equal(t, "receivables", combined.Receivables.Kind)
	require.Equal(t, "payables", combined.Payables.Kind)
}

func TestReportCaching(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := &staticSource{docs: []Document{doc("INV-1", day(2024, 7, 20), "100.00")}}
	svc := NewService(slog.Default(), source, &staticSource{}, client)
	svc.WithNow(func() time.Time { return day(2024, 8, 5) })

	first, err := svc.Receivables(context.Background())
	require.NoError(t, err)
	second, err := svc.Receivables(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)
	require.True(t, first.Total.Equal(second.Total))

	// After the TTL window the report is recomputed.
	mr.FastForward(cacheTTL + time.Second)
	_, err = svc.Receivables(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, source.calls)
}
