package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. Pending is the only initial state;
// completed and cancelled are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition out of s is defined.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SyncStatus tracks external bookkeeping synchronization, independent of the
// order lifecycle. The core only ever writes the initial value.
type SyncStatus string

const (
	SyncLocal  SyncStatus = "local"
	SyncSynced SyncStatus = "synced"
)

var (
	// ErrNotFound is returned when a referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyAwarded is returned when a points award is attempted for an
	// order whose completion points were already credited.
	ErrAlreadyAwarded = errors.New("points already awarded")
	// ErrStaleStatus is returned by the repository when a conditional
	// status update matched no row because the order moved concurrently.
	ErrStaleStatus = errors.New("order status changed concurrently")
)

// InvalidTransitionError indicates a status update from a terminal state or
// any other undefined transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// AwardError reports a points-award failure that happened after the status
// change already committed. The order stays completed; the award can be
// retried via Service.RetryAward.
type AwardError struct {
	OrderID string
	Err     error
}

func (e *AwardError) Error() string {
	return fmt.Sprintf("order %s completed but points award failed: %v", e.OrderID, e.Err)
}

func (e *AwardError) Unwrap() error { return e.Err }

// Item is a single order line. Immutable after creation and owned
// exclusively by its order.
type Item struct {
	ID        int64
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Order is a settled cart. CustomerName is denormalized at creation time and
// never changes retroactively. Status is the only field the core mutates
// after creation; PointsAwardedAt is set by the award transaction.
type Order struct {
	ID              string
	InvoiceNo       string
	CustomerID      string
	CustomerName    string
	Amount          decimal.Decimal // pre-discount subtotal
	DiscountAmount  decimal.Decimal
	PointsRedeemed  int64
	RedemptionValue decimal.Decimal
	Total           decimal.Decimal // final charge, always >= 0
	DiscountCode    string
	Status          Status
	SyncStatus      SyncStatus
	PointsAwardedAt *time.Time
	CreatedAt       time.Time
	Items           []Item
}

// ListFilter narrows and pages an order listing.
type ListFilter struct {
	Page       int
	Limit      int
	Status     Status // empty = all
	CustomerID string // empty = all
}

// Repository defines the transactional storage primitives the settlement
// engine relies on.
type Repository interface {
	// Create persists the order, its items, and (when o.PointsRedeemed is
	// positive) the points redemption, balance decrement plus ledger row,
	// as one atomic transaction. Returns ledger.ErrInsufficientPoints if
	// the redemption would overdraw the balance at commit time; nothing is
	// persisted in that case.
	Create(ctx context.Context, o *Order) error

	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)

	// SetStatus performs a conditional status update guarded by the
	// expected current status. Returns ErrStaleStatus when the guard does
	// not match.
	SetStatus(ctx context.Context, id string, from, to Status) error

	// Award credits earned points in its own atomic transaction: balance
	// increment, ledger row, and the order's awarded marker. The marker
	// guards idempotency; a repeat attempt returns ErrAlreadyAwarded.
	Award(ctx context.Context, orderID, customerID string, points int64, description string) error

	// ListUnawarded returns completed orders whose points award has not
	// succeeded yet, for reconciliation.
	ListUnawarded(ctx context.Context) ([]Order, error)
}
