package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
	"github.com/loyaltydesk/backoffice/internal/domain/ledger"
)

const (
	debitPointsSQL = `UPDATE customers SET points = points - $2, updated_at = now()
		WHERE id = $1 AND points >= $2`

	creditPointsSQL = `UPDATE customers SET points = points + $2, updated_at = now()
		WHERE id = $1`

	insertTransactionSQL = `INSERT INTO points_transactions (customer_id, amount, type, description)
		VALUES ($1, $2, $3, $4)`

	listTransactionsSQL = `SELECT id, customer_id, amount, type, description, created_at
		FROM points_transactions WHERE customer_id = $1
		ORDER BY id DESC LIMIT $2 OFFSET $3`

	countTransactionsSQL = `SELECT COUNT(*) FROM points_transactions WHERE customer_id = $1`

	customerBalanceSQL = `SELECT points FROM customers WHERE id = $1`

	ledgerSumSQL = `SELECT COALESCE(SUM(amount), 0) FROM points_transactions WHERE customer_id = $1`
)

// debitPoints decrements a customer's balance and appends the matching
// negative ledger row inside the caller's transaction. The balance guard in
// the UPDATE re-validates under the transaction's isolation, so a concurrent
// debit that committed first makes this one fail instead of overdrawing.
// Zero debits are skipped entirely to keep the ledger free of noise rows.
func debitPoints(ctx context.Context, tx pgx.Tx, customerID string, points int64, typ ledger.Type, description string) error {
	if points == 0 {
		return nil
	}

	tag, err := tx.Exec(ctx, debitPointsSQL, customerID, points)
	if err != nil {
		return fmt.Errorf("debiting %d points from customer %q: %w", points, customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrInsufficientPoints
	}

	_, err = tx.Exec(ctx, insertTransactionSQL, customerID, -points, typ, description)
	if err != nil {
		return fmt.Errorf("recording ledger debit for customer %q: %w", customerID, err)
	}
	return nil
}

// creditPoints increments a customer's balance and appends the matching
// positive ledger row inside the caller's transaction. Zero credits are
// skipped.
func creditPoints(ctx context.Context, tx pgx.Tx, customerID string, points int64, typ ledger.Type, description string) error {
	if points == 0 {
		return nil
	}

	_, err := tx.Exec(ctx, creditPointsSQL, customerID, points)
	if err != nil {
		return fmt.Errorf("crediting %d points to customer %q: %w", points, customerID, err)
	}

	_, err = tx.Exec(ctx, insertTransactionSQL, customerID, points, typ, description)
	if err != nil {
		return fmt.Errorf("recording ledger credit for customer %q: %w", customerID, err)
	}
	return nil
}

var _ ledger.Repository = (*LedgerRepository)(nil)

// LedgerRepository implements ledger.Repository backed by PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository returns a LedgerRepository that uses the given pool.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// ListByCustomer returns a page of a customer's ledger, newest first, plus
// the total row count.
func (r *LedgerRepository) ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]ledger.Transaction, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countTransactionsSQL, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting ledger rows for customer %q: %w", customerID, err)
	}

	rows, err := r.pool.Query(ctx, listTransactionsSQL, customerID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("listing ledger rows for customer %q: %w", customerID, err)
	}
	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// Adjust applies a manual points correction in its own atomic transaction.
func (r *LedgerRepository) Adjust(ctx context.Context, customerID string, amount int64, description string) error {
	if amount == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if amount < 0 {
			return debitPoints(ctx, tx, customerID, -amount, ledger.TypeAdjust, description)
		}
		return creditPoints(ctx, tx, customerID, amount, ledger.TypeAdjust, description)
	})
}

// VerifyBalance checks customer.points == sum(ledger amounts) under a single
// repeatable-read snapshot. A mismatch is surfaced as *InconsistencyError
// and never repaired automatically.
func (r *LedgerRepository) VerifyBalance(ctx context.Context, customerID string) error {
	var balance, sum int64
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, customerBalanceSQL, customerID).Scan(&balance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return customer.ErrNotFound
			}
			return fmt.Errorf("reading balance for customer %q: %w", customerID, err)
		}
		if err := tx.QueryRow(ctx, ledgerSumSQL, customerID).Scan(&sum); err != nil {
			return fmt.Errorf("summing ledger for customer %q: %w", customerID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if balance != sum {
		return &ledger.InconsistencyError{CustomerID: customerID, Balance: balance, LedgerSum: sum}
	}
	return nil
}

func scanTransaction(row pgx.CollectableRow) (ledger.Transaction, error) {
	var (
		t   ledger.Transaction
		typ string
	)
	err := row.Scan(&t.ID, &t.CustomerID, &t.Amount, &typ, &t.Description, &t.CreatedAt)
	t.Type = ledger.Type(typ)
	return t, err
}
