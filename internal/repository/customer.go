package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
)

const (
	customerColumns = `id, name, phone, type, discount_rate, discount_code, points, created_at, updated_at`

	getCustomerSQL = `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	listCustomersSQL = `SELECT ` + customerColumns + ` FROM customers
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	countCustomersSQL = `SELECT COUNT(*) FROM customers`

	insertCustomerSQL = `INSERT INTO customers (id, name, phone, type, discount_rate, discount_code)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateCustomerSQL = `UPDATE customers SET name = $2, phone = $3, type = $4,
		discount_rate = $5, discount_code = $6, updated_at = now()
		WHERE id = $1`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
// The points balance is never written here; only the ledger operations
// touch it.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a single customer by its identifier.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %q: %w", id, err)
	}
	return &c, nil
}

// List returns a page of customers plus the total count.
func (r *CustomerRepository) List(ctx context.Context, page, limit int) ([]customer.Customer, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countCustomersSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting customers: %w", err)
	}

	rows, err := r.pool.Query(ctx, listCustomersSQL, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing customers: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanCustomer)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// Create persists a new customer with a zero points balance.
func (r *CustomerRepository) Create(ctx context.Context, c *customer.Customer) error {
	_, err := r.pool.Exec(ctx, insertCustomerSQL,
		c.ID, c.Name, c.Phone, c.Type, c.DiscountRate, c.DiscountCode,
	)
	if err != nil {
		return fmt.Errorf("creating customer %q: %w", c.ID, err)
	}
	return nil
}

// Update rewrites the administrative fields. Points are excluded by design.
func (r *CustomerRepository) Update(ctx context.Context, c *customer.Customer) error {
	tag, err := r.pool.Exec(ctx, updateCustomerSQL,
		c.ID, c.Name, c.Phone, c.Type, c.DiscountRate, c.DiscountCode,
	)
	if err != nil {
		return fmt.Errorf("updating customer %q: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return customer.ErrNotFound
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var (
		c   customer.Customer
		typ string
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &typ, &c.DiscountRate, &c.DiscountCode,
		&c.Points, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = customer.Type(typ)
	return c, err
}
