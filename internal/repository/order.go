package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loyaltydesk/backoffice/internal/domain/ledger"
	"github.com/loyaltydesk/backoffice/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, invoice_no, customer_id, customer_name,
		amount, discount_amount, points_redeemed, redemption_value, total,
		discount_code, status, sync_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5)`

	orderColumns = `id, invoice_no, customer_id, customer_name, amount, discount_amount,
		points_redeemed, redemption_value, total, discount_code, status, sync_status,
		points_awarded_at, created_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, name, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`

	setStatusSQL = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	markAwardedSQL = `UPDATE orders SET points_awarded_at = now()
		WHERE id = $1 AND points_awarded_at IS NULL`

	listUnawardedSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE status = 'completed' AND points_awarded_at IS NULL
		ORDER BY created_at`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its line items, and any points redemption as
// one atomic transaction. A redemption that would overdraw the balance fails
// the whole transaction with ledger.ErrInsufficientPoints; no partial order
// or ledger row is ever visible.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertOrderSQL,
			o.ID, o.InvoiceNo, o.CustomerID, o.CustomerName,
			o.Amount, o.DiscountAmount, o.PointsRedeemed, o.RedemptionValue, o.Total,
			o.DiscountCode, o.Status, o.SyncStatus, o.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}

		for i := range o.Items {
			it := &o.Items[i]
			err := tx.QueryRow(ctx, insertOrderItemSQL+` RETURNING id`,
				o.ID, it.Name, it.Quantity, it.UnitPrice, it.LineTotal,
			).Scan(&it.ID)
			if err != nil {
				return fmt.Errorf("creating item %d of order %q: %w", i, o.ID, err)
			}
		}

		if o.PointsRedeemed > 0 {
			desc := fmt.Sprintf("points redeemed against order %s", o.InvoiceNo)
			if err := debitPoints(ctx, tx, o.CustomerID, o.PointsRedeemed, ledger.TypeRedeem, desc); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID returns an order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns a page of orders (without items) matching the filter, plus
// the total match count.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		where = append(where, "customer_id = $"+strconv.Itoa(len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders"+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	q := "SELECT " + orderColumns + " FROM orders" + cond +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) +
		" OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// SetStatus updates the status only when the current value matches the
// expected one, so concurrent transitions cannot silently overwrite each
// other.
func (r *OrderRepository) SetStatus(ctx context.Context, id string, from, to order.Status) error {
	tag, err := r.pool.Exec(ctx, setStatusSQL, id, from, to)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStaleStatus
	}
	return nil
}

// Award credits earned points in one atomic transaction: the order's awarded
// marker, the balance increment, and the matching ledger row. The marker's
// WHERE clause makes the operation idempotent; a repeat attempt returns
// order.ErrAlreadyAwarded and writes nothing.
func (r *OrderRepository) Award(ctx context.Context, orderID, customerID string, points int64, description string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, markAwardedSQL, orderID)
		if err != nil {
			return fmt.Errorf("marking order %q awarded: %w", orderID, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrAlreadyAwarded
		}
		return creditPoints(ctx, tx, customerID, points, ledger.TypeEarn, description)
	})
}

// ListUnawarded returns completed orders whose award transaction has not
// succeeded yet.
func (r *OrderRepository) ListUnawarded(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listUnawardedSQL)
	if err != nil {
		return nil, fmt.Errorf("listing unawarded orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o          order.Order
		status     string
		syncStatus string
	)
	err := row.Scan(
		&o.ID, &o.InvoiceNo, &o.CustomerID, &o.CustomerName,
		&o.Amount, &o.DiscountAmount, &o.PointsRedeemed, &o.RedemptionValue, &o.Total,
		&o.DiscountCode, &status, &syncStatus, &o.PointsAwardedAt, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	o.SyncStatus = order.SyncStatus(syncStatus)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(&it.ID, &it.Name, &it.Quantity, &it.UnitPrice, &it.LineTotal)
	return it, err
}
