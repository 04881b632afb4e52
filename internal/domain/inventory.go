package domain

import "time"

// LedgerKind identifies the kind of an inventory ledger entry. The signed
// interpretation of an entry's quantity is a pure function of its kind, so
// kind is mandatory and immutable per entry.
type LedgerKind string

const (
	LedgerReserved       LedgerKind = "RESERVED"
	LedgerReturned       LedgerKind = "RETURNED"
	LedgerPurchased      LedgerKind = "PURCHASED"
	LedgerSold           LedgerKind = "SOLD"
	LedgerDecommissioned LedgerKind = "DECOMMISSIONED"
)

// Sign returns the signed direction of the kind: stock-increasing kinds are
// +1, stock-consuming kinds are -1.
func (k LedgerKind) Sign() int {
	switch k {
	case LedgerPurchased, LedgerReturned:
		return 1
	case LedgerReserved, LedgerSold, LedgerDecommissioned:
		return -1
	default:
		return 0
	}
}

// Item is a rentable or sellable unit type. Items never store an available
// quantity; availability is always computed from the ledger.
type Item struct {
	ID        string
	Name      string
	Price     float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is one immutable, append-only inventory change. Quantity is a
// positive magnitude; TargetDate is the date the change takes effect, which
// may be in the future of CreatedAt for pre-bookings. Corrections are always
// new compensating entries, never updates or deletions.
type LedgerEntry struct {
	ID         string
	ItemID     string
	OrderID    *string
	Kind       LedgerKind
	Quantity   int
	TargetDate time.Time
	CreatedAt  time.Time
}
