package service

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/observability"
	"github.com/festivo/ops-service/internal/persistence"
	"github.com/festivo/ops-service/internal/repository"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// passRunner runs the unit of work directly; the fakes below have no real
// transactions to join.
type passRunner struct{}

func (passRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// simTx stands in for a database transaction when a test simulates a call
// that joined an outer unit of work.
type simTx struct{ pgx.Tx }

// inTxContext returns a context that looks like it runs inside an open,
// not yet committed transaction.
func inTxContext() context.Context {
	return persistence.ContextWithTx(context.Background(), simTx{})
}

// fakeInventoryRepo keeps items and an append-only ledger in memory and
// mirrors the aggregate queries the real repository answers in SQL.
type fakeInventoryRepo struct {
	items   map[string]*domain.Item
	ledger  []domain.LedgerEntry
	nextID  int
	locked  []string
	appends int
}

func newFakeInventoryRepo() *fakeInventoryRepo {
	return &fakeInventoryRepo{items: make(map[string]*domain.Item)}
}

func (f *fakeInventoryRepo) CreateItem(_ context.Context, item *domain.Item) error {
	f.nextID++
	item.ID = fmt.Sprintf("item-%d", f.nextID)
	item.CreatedAt = time.Now().UTC()
	item.UpdatedAt = item.CreatedAt
	f.items[item.ID] = item
	return nil
}

func (f *fakeInventoryRepo) GetItem(_ context.Context, id string) (*domain.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return item, nil
}

func (f *fakeInventoryRepo) LockItem(_ context.Context, itemID string) error {
	if _, ok := f.items[itemID]; !ok {
		return pgx.ErrNoRows
	}
	f.locked = append(f.locked, itemID)
	return nil
}

func (f *fakeInventoryRepo) AppendEntry(_ context.Context, entry *domain.LedgerEntry) error {
	f.nextID++
	entry.ID = fmt.Sprintf("entry-%d", f.nextID)
	entry.CreatedAt = time.Now().UTC().Add(time.Duration(f.nextID) * time.Millisecond)
	f.ledger = append(f.ledger, *entry)
	f.appends++
	return nil
}

func (f *fakeInventoryRepo) ListEntries(_ context.Context, itemID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range f.ledger {
		if e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeInventoryRepo) AvailabilityOnDate(_ context.Context, itemID string, date time.Time) (int, error) {
	total := 0
	for _, e := range f.ledger {
		if e.ItemID == itemID && !e.TargetDate.After(date) {
			total += e.Kind.Sign() * e.Quantity
		}
	}
	return total, nil
}

func (f *fakeInventoryRepo) RangeBuckets(_ context.Context, itemID string, start, end time.Time) (int, []repository.DayBucket, error) {
	baseline := 0
	byDate := make(map[time.Time]int)
	for _, e := range f.ledger {
		if e.ItemID != itemID {
			continue
		}
		switch {
		case e.TargetDate.Before(start):
			baseline += e.Kind.Sign() * e.Quantity
		case e.TargetDate.Before(end):
			byDate[e.TargetDate] += e.Kind.Sign() * e.Quantity
		}
	}
	buckets := make([]repository.DayBucket, 0, len(byDate))
	for d, delta := range byDate {
		buckets = append(buckets, repository.DayBucket{Date: d, Delta: delta})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Date.Before(buckets[j].Date) })
	return baseline, buckets, nil
}

func (f *fakeInventoryRepo) FindOpenReservation(_ context.Context, itemID, orderID string) (*domain.LedgerEntry, error) {
	for i := range f.ledger {
		r := f.ledger[i]
		if r.ItemID != itemID || r.OrderID == nil || *r.OrderID != orderID || r.Kind != domain.LedgerReserved {
			continue
		}
		compensated := false
		for _, c := range f.ledger {
			if c.ItemID == itemID && c.OrderID != nil && *c.OrderID == orderID &&
				c.Kind == domain.LedgerReturned && c.Quantity == r.Quantity && c.CreatedAt.After(r.CreatedAt) {
				compensated = true
				break
			}
		}
		if !compensated {
			return &r, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func day(d int) time.Time {
	return time.Date(2026, time.June, d, 0, 0, 0, 0, time.UTC)
}

func newInventoryFixture(t *testing.T) (*InventoryService, *fakeInventoryRepo) {
	t.Helper()
	repo := newFakeInventoryRepo()
	svc := NewInventoryService(InventoryDependencies{
		Runner:     passRunner{},
		Repo:       repo,
		Dispatcher: events.NewInMemoryDispatcher(),
		Metrics:    observability.NewMetrics(),
	})
	return svc, repo
}

func seedItem(t *testing.T, svc *InventoryService) *domain.Item {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), "round table", 25)
	require.NoError(t, err)
	return item
}

func TestLowWaterMark(t *testing.T) {
	bucket := func(d, delta int) repository.DayBucket {
		return repository.DayBucket{Date: day(d), Delta: delta}
	}

	tests := []struct {
		name     string
		baseline int
		buckets  []repository.DayBucket
		start    time.Time
		want     int
	}{
		{name: "no buckets", baseline: 5, start: day(1), want: 5},
		{name: "single bucket on start", baseline: 5, buckets: []repository.DayBucket{bucket(1, -2)}, start: day(1), want: 3},
		{name: "first bucket after start counts baseline", baseline: 5, buckets: []repository.DayBucket{bucket(3, 4)}, start: day(1), want: 5},
		{name: "dip inside window", baseline: 5, buckets: []repository.DayBucket{bucket(1, -4), bucket(3, 2)}, start: day(1), want: 1},
		{name: "recovery does not mask dip", baseline: 2, buckets: []repository.DayBucket{bucket(1, -2), bucket(2, 3)}, start: day(1), want: 0},
		{name: "negative ledger surfaces", baseline: 1, buckets: []repository.DayBucket{bucket(1, -3)}, start: day(1), want: -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lowWaterMark(tt.baseline, tt.buckets, tt.start))
		})
	}
}

func TestAvailableForRangeCountsStockPurchasedBeforeWindow(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Purchase(ctx, item.ID, 10, day(1)))
	require.NoError(t, svc.Reserve(ctx, "order-1", item.ID, 4, day(10), day(12)))

	available, err := svc.AvailableForRange(ctx, item.ID, day(10), day(12))
	require.NoError(t, err)
	assert.Equal(t, 6, available)

	// Outside the reservation window the full stock is back.
	available, err = svc.AvailableForRange(ctx, item.ID, day(20), day(22))
	require.NoError(t, err)
	assert.Equal(t, 10, available)
}

func TestReserveRejectsInsufficientAvailability(t *testing.T) {
	svc, repo := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Purchase(ctx, item.ID, 3, day(1)))
	appendsBefore := repo.appends

	err := svc.Reserve(ctx, "order-1", item.ID, 5, day(10), day(11))
	require.Error(t, err)
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "INSUFFICIENT_AVAILABILITY", domErr.Code)

	// The rejected reservation appended nothing.
	assert.Equal(t, appendsBefore, repo.appends)
}

func TestReserveLocksItemBeforeAvailabilityRead(t *testing.T) {
	svc, repo := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Purchase(ctx, item.ID, 2, day(1)))
	repo.locked = nil
	require.NoError(t, svc.Reserve(ctx, "order-1", item.ID, 1, day(5), day(6)))
	assert.Contains(t, repo.locked, item.ID)
}

func TestReserveUnknownItem(t *testing.T) {
	svc, _ := newInventoryFixture(t)

	err := svc.Reserve(context.Background(), "order-1", "missing", 1, day(5), day(6))
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "NOT_FOUND", domErr.Code)
}

func TestCancelReservationCompensatesInsteadOfDeleting(t *testing.T) {
	svc, repo := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Purchase(ctx, item.ID, 5, day(1)))
	require.NoError(t, svc.Reserve(ctx, "order-1", item.ID, 3, day(10), day(12)))
	require.NoError(t, svc.CancelReservation(ctx, "order-1", item.ID))

	// Availability inside the old window is fully restored.
	available, err := svc.AvailableForRange(ctx, item.ID, day(10), day(12))
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	// Both the reservation and its compensation remain on the ledger.
	entries, err := repo.ListEntries(ctx, item.ID)
	require.NoError(t, err)
	kinds := make([]domain.LedgerKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []domain.LedgerKind{domain.LedgerPurchased, domain.LedgerReserved, domain.LedgerReturned}, kinds)
}

func TestCancelReservationTwiceFails(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Purchase(ctx, item.ID, 5, day(1)))
	require.NoError(t, svc.Reserve(ctx, "order-1", item.ID, 2, day(10), day(11)))
	require.NoError(t, svc.CancelReservation(ctx, "order-1", item.ID))

	err := svc.CancelReservation(ctx, "order-1", item.ID)
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "CONFLICT", domErr.Code)
}

func TestReturnItemsUsesCallerTargetDate(t *testing.T) {
	svc, repo := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Purchase(ctx, item.ID, 4, day(1)))
	require.NoError(t, svc.Reserve(ctx, "order-1", item.ID, 4, day(10), day(15)))

	// Items came back early; stock frees from day 12 onward.
	require.NoError(t, svc.ReturnItems(ctx, "order-1", item.ID, day(12)))

	available, err := svc.AvailableForRange(ctx, item.ID, day(12), day(15))
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	entries, err := repo.ListEntries(ctx, item.ID)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.LedgerReturned, last.Kind)
	assert.Equal(t, day(12), last.TargetDate)
}

func TestSellAndDecommissionReduceStockPermanently(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.Purchase(ctx, item.ID, 10, day(1)))
	require.NoError(t, svc.Sell(ctx, item.ID, nil, 3, day(2)))
	require.NoError(t, svc.Decommission(ctx, item.ID, 2, day(3)))

	available, err := svc.AvailableOnDate(ctx, item.ID, day(4))
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestAppendRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	item := seedItem(t, svc)
	ctx := context.Background()

	for _, q := range []int{0, -1} {
		err := svc.Purchase(ctx, item.ID, q, day(1))
		var domErr *apperrors.DomainError
		require.ErrorAs(t, err, &domErr)
		assert.Equal(t, "VALIDATION_FAILED", domErr.Code)
	}
}

func TestReserveInsideOuterTransactionDefersAnnouncement(t *testing.T) {
	repo := newFakeInventoryRepo()
	dispatcher := events.NewInMemoryDispatcher()
	var announced []events.Event
	dispatcher.Subscribe(events.EventInventoryReserved, func(_ context.Context, ev events.Event) error {
		announced = append(announced, ev)
		return nil
	})
	svc := NewInventoryService(InventoryDependencies{
		Runner:     passRunner{},
		Repo:       repo,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
	})
	item := seedItem(t, svc)
	require.NoError(t, svc.Purchase(context.Background(), item.ID, 10, day(1)))

	require.NoError(t, svc.Reserve(inTxContext(), "order-1", item.ID, 2, day(10), day(12)))

	// The append happened, but the caller's transaction owns the outcome.
	assert.Empty(t, announced)
	available, err := svc.AvailableOnDate(context.Background(), item.ID, day(10))
	require.NoError(t, err)
	assert.Equal(t, 8, available)

	require.NoError(t, svc.Reserve(context.Background(), "order-2", item.ID, 2, day(10), day(12)))
	require.Len(t, announced, 1)
	payload, ok := announced[0].Payload.(events.InventoryPayload)
	require.True(t, ok)
	require.NotNil(t, payload.OrderID)
	assert.Equal(t, "order-2", *payload.OrderID)
}
