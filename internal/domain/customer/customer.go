package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported customer categories. The category selects
// the default discount rate when the customer has no individual rate set.
type Type string

const (
	TypeRegular    Type = "regular"
	TypeContractor Type = "contractor"
	TypeDesigner   Type = "designer"
	TypeWholesale  Type = "wholesale"
	TypeOther      Type = "other"
)

// ErrNotFound is returned when a referenced customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Valid reports whether t is one of the known customer types.
func (t Type) Valid() bool {
	switch t {
	case TypeRegular, TypeContractor, TypeDesigner, TypeWholesale, TypeOther:
		return true
	}
	return false
}

// Customer is a loyalty program member. Points is the running balance and is
// mutated exclusively through ledger operations; every change is paired with
// a ledger.Transaction row in the same storage transaction.
type Customer struct {
	ID           string
	Name         string
	Phone        string
	Type         Type
	DiscountRate decimal.Decimal // percent, 0-100; zero means "use type default"
	DiscountCode string          // optional personal code, opaque reference
	Points       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines persistence operations for customers.
//
// Delete is intentionally absent: customers referenced by orders or points
// history must never be removed.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	List(ctx context.Context, page, limit int) ([]Customer, int, error)
	Create(ctx context.Context, c *Customer) error
	Update(ctx context.Context, c *Customer) error
}
