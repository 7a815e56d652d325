package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Type tags a points transaction with the operation that produced it.
type Type string

const (
	// TypeEarn credits points for a completed order.
	TypeEarn Type = "earn"
	// TypeRedeem debits points spent against an order total.
	TypeRedeem Type = "redeem"
	// TypeAdjust records a manual administrative correction.
	TypeAdjust Type = "adjust"
)

// ErrInsufficientPoints is returned when a debit would overdraw the
// customer's balance. The check runs inside the storage transaction, so a
// redemption that passed pricing-time clamping can still fail here if a
// concurrent debit committed first.
var ErrInsufficientPoints = errors.New("insufficient points")

// Transaction is one append-only ledger row. The sum of a customer's
// transaction amounts always equals the customer's current points balance.
type Transaction struct {
	ID          int64
	CustomerID  string
	Amount      int64 // positive = credit, negative = debit
	Type        Type
	Description string
	CreatedAt   time.Time
}

// InconsistencyError reports a balance that no longer matches the ledger
// sum. It is never repaired automatically; it surfaces for manual
// reconciliation.
type InconsistencyError struct {
	CustomerID string
	Balance    int64
	LedgerSum  int64
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency for customer %s: balance=%d ledger_sum=%d",
		e.CustomerID, e.Balance, e.LedgerSum)
}

// Repository provides read access to the ledger plus standalone mutations
// that are not tied to an order settlement. Order-coupled debits and credits
// are executed by the order repository inside the settlement transactions.
type Repository interface {
	ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]Transaction, int, error)

	// Adjust applies a manual correction in its own atomic transaction:
	// one balance change paired with one ledger row. A negative amount
	// fails with ErrInsufficientPoints rather than overdrawing.
	Adjust(ctx context.Context, customerID string, amount int64, description string) error

	// VerifyBalance re-checks the core invariant under a single snapshot:
	// customer.points == sum(transactions.amount). A mismatch is returned
	// as *InconsistencyError.
	VerifyBalance(ctx context.Context, customerID string) error
}
