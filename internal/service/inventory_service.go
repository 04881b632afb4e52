package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/observability"
	"github.com/festivo/ops-service/internal/persistence"
	"github.com/festivo/ops-service/internal/repository"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// ErrReservationNotFound is returned when no open (uncompensated) RESERVED
// entry exists for the order, including when a reservation was already
// cancelled once.
var ErrReservationNotFound = errors.New("no open reservation for order")

// InsufficientAvailabilityError reports a reservation that exceeds the
// computed availability for its date range.
type InsufficientAvailabilityError struct {
	ItemID    string
	Requested int
	Available int
}

func (e *InsufficientAvailabilityError) Error() string {
	return fmt.Sprintf("only %d of %d units available for item %s in selected dates", e.Available, e.Requested, e.ItemID)
}

// InventoryService is the ledger-based availability engine. All inventory
// mutations go through it; none of them ever update or delete a ledger row.
type InventoryService struct {
	runner     persistence.TxRunner
	repo       repository.InventoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// InventoryDependencies bundles collaborators for the inventory service.
type InventoryDependencies struct {
	Runner     persistence.TxRunner
	Repo       repository.InventoryRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewInventoryService constructs the service.
func NewInventoryService(deps InventoryDependencies) *InventoryService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{
		runner:     deps.Runner,
		repo:       deps.Repo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// CreateItem registers a new rentable item.
func (s *InventoryService) CreateItem(ctx context.Context, name string, price float64) (*domain.Item, error) {
	item := &domain.Item{Name: name, Price: price}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, apperrors.MapError(err)
	}
	return item, nil
}

// GetItem fetches an item.
func (s *InventoryService) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("item", map[string]any{"item_id": itemID})
		}
		return nil, apperrors.MapError(err)
	}
	return item, nil
}

// AvailableOnDate returns the signed ledger sum effective on the given
// date. A negative result means the ledger is corrupt; reservation locking
// prevents it from occurring, so it is logged as an invariant violation and
// not treated as a valid oversold state.
func (s *InventoryService) AvailableOnDate(ctx context.Context, itemID string, date time.Time) (int, error) {
	total, err := s.repo.AvailabilityOnDate(ctx, itemID, dateOnly(date))
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	if total < 0 {
		s.logger.Error("negative availability: ledger invariant violated",
			zap.String("item_id", itemID), zap.Time("date", date), zap.Int("total", total))
	}
	return total, nil
}

// AvailableForRange returns the low-water-mark availability for
// [start, end): the minimum point-in-time availability across every day of
// the window. A multi-day reservation must not push any single day
// negative, so the binding constraint is the day with the least slack.
func (s *InventoryService) AvailableForRange(ctx context.Context, itemID string, start, end time.Time) (int, error) {
	start, end = dateOnly(start), dateOnly(end)
	if !start.Before(end) {
		return 0, apperrors.NewValidationError("start date must precede end date", nil)
	}
	baseline, buckets, err := s.repo.RangeBuckets(ctx, itemID, start, end)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return lowWaterMark(baseline, buckets, start), nil
}

// lowWaterMark folds day-bucketed deltas into the minimum running total
// observed across the window. baseline is the signed sum of all entries
// dated before start; buckets are the per-date sums inside the window,
// ascending. Days between buckets hold the previous running total, so the
// baseline itself only counts when some day precedes the first bucket.
func lowWaterMark(baseline int, buckets []repository.DayBucket, start time.Time) int {
	running := baseline
	minSeen := false
	min := 0
	for _, b := range buckets {
		if !minSeen && dateOnly(b.Date).After(start) {
			min = baseline
			minSeen = true
		}
		running += b.Delta
		if !minSeen || running < min {
			min = running
			minSeen = true
		}
	}
	if !minSeen {
		return baseline
	}
	return min
}

// Reserve appends a RESERVED entry for the order after verifying range
// availability under the item's exclusive row lock. The lock is taken
// before the availability read so concurrent reservations for one item
// serialize and the second attempt observes the first's committed entry.
func (s *InventoryService) Reserve(ctx context.Context, orderID, itemID string, quantity int, start, end time.Time) error {
	if quantity <= 0 {
		return apperrors.NewValidationError("quantity must be positive", nil)
	}
	start, end = dateOnly(start), dateOnly(end)
	if !start.Before(end) {
		return apperrors.NewValidationError("start date must precede end date", nil)
	}
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockItem(ctx, itemID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("item", map[string]any{"item_id": itemID})
			}
			return err
		}
		baseline, buckets, err := s.repo.RangeBuckets(ctx, itemID, start, end)
		if err != nil {
			return err
		}
		available := lowWaterMark(baseline, buckets, start)
		if available < quantity {
			s.metrics.RecordRejection("item", "INSUFFICIENT_AVAILABILITY")
			return apperrors.NewInsufficientAvailability(
				&InsufficientAvailabilityError{ItemID: itemID, Requested: quantity, Available: available},
				map[string]any{"item_id": itemID, "available": available})
		}
		return s.repo.AppendEntry(ctx, &domain.LedgerEntry{
			ItemID:     itemID,
			OrderID:    &orderID,
			Kind:       domain.LedgerReserved,
			Quantity:   quantity,
			TargetDate: start,
		})
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if committed(ctx) {
		s.metrics.RecordReservation(itemID, string(domain.LedgerReserved))
		s.publishLedgerEvent(ctx, events.EventInventoryReserved, domain.LedgerReserved, itemID, &orderID, quantity, start)
	}
	return nil
}

// CancelReservation compensates the order's open RESERVED entry with a
// RETURNED entry of equal quantity and target date. The original entry is
// never deleted or mutated, and a second cancellation fails because no
// uncompensated entry remains.
func (s *InventoryService) CancelReservation(ctx context.Context, orderID, itemID string) error {
	var released *domain.LedgerEntry
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockItem(ctx, itemID); err != nil {
			return err
		}
		reservation, err := s.repo.FindOpenReservation(ctx, itemID, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewConflict(ErrReservationNotFound.Error(),
					map[string]any{"item_id": itemID, "order_id": orderID})
			}
			return err
		}
		released = &domain.LedgerEntry{
			ItemID:     itemID,
			OrderID:    &orderID,
			Kind:       domain.LedgerReturned,
			Quantity:   reservation.Quantity,
			TargetDate: reservation.TargetDate,
		}
		return s.repo.AppendEntry(ctx, released)
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if committed(ctx) {
		s.metrics.RecordReservation(itemID, string(domain.LedgerReturned))
		s.publishLedgerEvent(ctx, events.EventInventoryReleased, domain.LedgerReturned, itemID, &orderID, released.Quantity, released.TargetDate)
	}
	return nil
}

// ReturnItems appends a RETURNED entry for the order's reserved quantity
// dated targetDate, supporting returns that complete on a different date
// than the reservation start.
func (s *InventoryService) ReturnItems(ctx context.Context, orderID, itemID string, targetDate time.Time) error {
	targetDate = dateOnly(targetDate)
	var quantity int
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockItem(ctx, itemID); err != nil {
			return err
		}
		reservation, err := s.repo.FindOpenReservation(ctx, itemID, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewConflict(ErrReservationNotFound.Error(),
					map[string]any{"item_id": itemID, "order_id": orderID})
			}
			return err
		}
		quantity = reservation.Quantity
		return s.repo.AppendEntry(ctx, &domain.LedgerEntry{
			ItemID:     itemID,
			OrderID:    &orderID,
			Kind:       domain.LedgerReturned,
			Quantity:   quantity,
			TargetDate: targetDate,
		})
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if committed(ctx) {
		s.metrics.RecordReservation(itemID, string(domain.LedgerReturned))
		s.publishLedgerEvent(ctx, events.EventInventoryReleased, domain.LedgerReturned, itemID, &orderID, quantity, targetDate)
	}
	return nil
}

// Purchase appends stock unconditionally; purchases are not order scoped.
func (s *InventoryService) Purchase(ctx context.Context, itemID string, quantity int, targetDate time.Time) error {
	return s.appendUnconditional(ctx, itemID, nil, domain.LedgerPurchased, quantity, targetDate)
}

// Sell permanently removes stock through a sale.
func (s *InventoryService) Sell(ctx context.Context, itemID string, orderID *string, quantity int, targetDate time.Time) error {
	return s.appendUnconditional(ctx, itemID, orderID, domain.LedgerSold, quantity, targetDate)
}

// Decommission permanently removes stock.
func (s *InventoryService) Decommission(ctx context.Context, itemID string, quantity int, targetDate time.Time) error {
	return s.appendUnconditional(ctx, itemID, nil, domain.LedgerDecommissioned, quantity, targetDate)
}

func (s *InventoryService) appendUnconditional(ctx context.Context, itemID string, orderID *string, kind domain.LedgerKind, quantity int, targetDate time.Time) error {
	if quantity <= 0 {
		return apperrors.NewValidationError("quantity must be positive", nil)
	}
	targetDate = dateOnly(targetDate)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockItem(ctx, itemID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("item", map[string]any{"item_id": itemID})
			}
			return err
		}
		return s.repo.AppendEntry(ctx, &domain.LedgerEntry{
			ItemID:     itemID,
			OrderID:    orderID,
			Kind:       kind,
			Quantity:   quantity,
			TargetDate: targetDate,
		})
	})
	if err != nil {
		return apperrors.MapError(err)
	}
	if committed(ctx) {
		s.metrics.RecordReservation(itemID, string(kind))
	}
	return nil
}

func (s *InventoryService) publishLedgerEvent(ctx context.Context, eventType events.EventType, kind domain.LedgerKind, itemID string, orderID *string, quantity int, targetDate time.Time) {
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     eventType,
		EntityID: itemID,
		Payload: events.InventoryPayload{
			ItemID:     itemID,
			OrderID:    orderID,
			Kind:       kind,
			Quantity:   quantity,
			TargetDate: targetDate,
		},
	})
}

// dateOnly truncates to a UTC calendar date. Ledger target dates are
// day-granular.
func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
