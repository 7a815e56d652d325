package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
	"github.com/loyaltydesk/backoffice/internal/domain/pricing"
	"github.com/loyaltydesk/backoffice/internal/domain/settings"
)

// ItemRequest is one cart line of a settlement request.
type ItemRequest struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreateRequest holds the input for settling a new order.
type CreateRequest struct {
	CustomerID string
	// CustomerName overrides the snapshot taken from the customer record
	// when non-empty.
	CustomerName   string
	Items          []ItemRequest
	DiscountCode   string
	PointsToRedeem int64
}

// Service is the order settlement engine. It orchestrates cart pricing,
// atomic order persistence with points redemption, and the award-on-completion
// side effect.
type Service struct {
	customers customer.Repository
	orders    Repository
	config    settings.Provider
	now       func() time.Time
}

// NewService creates a settlement Service with the required dependencies.
func NewService(customers customer.Repository, orders Repository, config settings.Provider) *Service {
	return &Service{
		customers: customers,
		orders:    orders,
		config:    config,
		now:       time.Now,
	}
}

// Create settles a cart: it loads the customer and a config snapshot, prices
// the cart, and persists the order, its items, and any points redemption as
// one atomic unit. On redemption the balance is re-validated inside the
// storage transaction; overdraw fails the whole settlement with
// ledger.ErrInsufficientPoints and nothing is persisted.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	c, err := s.customers.GetByID(ctx, req.CustomerID)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrap(err, "load customer")
	}

	cfg, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load config snapshot")
	}

	items := make([]pricing.Item, len(req.Items))
	for i, it := range req.Items {
		items[i] = pricing.Item{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	quote, err := pricing.Calculate(pricing.Input{
		Items:          items,
		CustomerType:   c.Type,
		CustomerRate:   c.DiscountRate,
		PointsToRedeem: req.PointsToRedeem,
		PointsBalance:  c.Points,
	}, cfg)
	if err != nil {
		return nil, err
	}

	name := req.CustomerName
	if name == "" {
		name = c.Name
	}

	id := uuid.New().String()
	o := &Order{
		ID:              id,
		InvoiceNo:       invoiceNo(id),
		CustomerID:      c.ID,
		CustomerName:    name,
		Amount:          quote.Subtotal,
		DiscountAmount:  quote.DiscountAmount,
		PointsRedeemed:  quote.PointsRedeemed,
		RedemptionValue: quote.RedemptionValue,
		Total:           quote.Total,
		DiscountCode:    req.DiscountCode,
		Status:          StatusPending,
		SyncStatus:      SyncLocal,
		CreatedAt:       s.now().UTC(),
	}
	o.Items = make([]Item, len(req.Items))
	for i, it := range req.Items {
		o.Items[i] = Item{
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2),
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	return o, nil
}

// UpdateStatus transitions an order. Terminal states reject any further
// transition with *InvalidTransitionError; setting the current status again
// is a no-op.
//
// A pending -> completed transition additionally awards
// floor(total * earnRate) points in a second, independent transaction. When
// that transaction fails the status change stays committed and the failure
// is reported as *AwardError alongside the updated order; the award is
// retryable via RetryAward.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, &InvalidTransitionError{To: to}
	}

	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == to {
		return o, nil
	}
	if o.Status.Terminal() {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	if err := s.orders.SetStatus(ctx, o.ID, o.Status, to); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, &InvalidTransitionError{From: o.Status, To: to}
		}
		return nil, errors.Wrap(err, "update status")
	}
	from := o.Status
	o.Status = to

	if from == StatusPending && to == StatusCompleted {
		if err := s.award(ctx, o); err != nil {
			return o, &AwardError{OrderID: o.ID, Err: err}
		}
	}
	return o, nil
}

// RetryAward re-runs the points award for a completed order whose earlier
// award transaction failed. It returns ErrAlreadyAwarded when the points
// were in fact credited.
func (s *Service) RetryAward(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusCompleted {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusCompleted}
	}
	if o.PointsAwardedAt != nil {
		return nil, ErrAlreadyAwarded
	}
	if err := s.award(ctx, o); err != nil {
		return o, &AwardError{OrderID: o.ID, Err: err}
	}
	return s.orders.GetByID(ctx, o.ID)
}

// award runs the second atomic unit: credit earned points and write the
// matching ledger row, guarded against double-award by the order's marker.
func (s *Service) award(ctx context.Context, o *Order) error {
	cfg, err := s.config.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "load config snapshot")
	}
	points := pricing.EarnedPoints(o.Total, cfg)
	desc := fmt.Sprintf("points earned for completed order %s", o.InvoiceNo)
	return s.orders.Award(ctx, o.ID, o.CustomerID, points, desc)
}

// Get returns a single order with its items.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// List returns a page of orders plus the total match count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	return s.orders.List(ctx, f)
}

// ListUnawarded returns completed orders still waiting for their points
// award, for reconciliation.
func (s *Service) ListUnawarded(ctx context.Context) ([]Order, error) {
	return s.orders.ListUnawarded(ctx)
}

// invoiceNo derives a short human-readable invoice reference from the order ID.
func invoiceNo(id string) string {
	return "INV-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:12])
}
