package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
)

// ErrEmptyCart is returned when a quote is requested for a cart with no items.
var ErrEmptyCart = errors.New("cart items required")

// InvalidItemError indicates a malformed cart line.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid cart item %d: %s", e.Index, e.Reason)
}

// Item is a single cart line for pricing purposes.
type Item struct {
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Input holds everything a quote depends on besides the config snapshot.
type Input struct {
	Items          []Item
	CustomerType   customer.Type
	CustomerRate   decimal.Decimal // percent; zero means "no individual rate"
	PointsToRedeem int64
	PointsBalance  int64
}

// Quote is the computed settlement pricing for a cart.
type Quote struct {
	Subtotal        decimal.Decimal
	DiscountRate    decimal.Decimal // percent actually applied
	DiscountAmount  decimal.Decimal
	PointsRedeemed  int64
	RedemptionValue decimal.Decimal
	Total           decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Calculate prices a cart. It is a pure function of its input and the
// config snapshot.
//
// Redemption is best-effort: a request exceeding the customer's balance is
// silently clamped to the balance rather than rejected. The balance re-check
// under transaction isolation happens later, inside the settlement
// transaction.
//
// The total is floored at zero; excess discount or redemption is never
// refunded as a negative charge.
func Calculate(in Input, cfg Config) (Quote, error) {
	if len(in.Items) == 0 {
		return Quote{}, ErrEmptyCart
	}

	subtotal := decimal.Zero
	for i, item := range in.Items {
		if item.Quantity <= 0 {
			return Quote{}, &InvalidItemError{Index: i, Reason: "quantity must be greater than 0"}
		}
		if item.UnitPrice.IsNegative() {
			return Quote{}, &InvalidItemError{Index: i, Reason: "unit price must not be negative"}
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	rate := resolveRate(in, subtotal, cfg)
	discount := subtotal.Mul(rate).Div(hundred).Round(2)

	redeemed := in.PointsToRedeem
	if redeemed < 0 {
		redeemed = 0
	}
	if redeemed > in.PointsBalance {
		redeemed = in.PointsBalance
	}
	redemptionValue := decimal.NewFromInt(redeemed).Mul(cfg.RedeemValue)

	total := subtotal.Sub(discount).Sub(redemptionValue)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Quote{
		Subtotal:        subtotal.Round(2),
		DiscountRate:    rate,
		DiscountAmount:  discount,
		PointsRedeemed:  redeemed,
		RedemptionValue: redemptionValue.Round(2),
		Total:           total.Round(2),
	}, nil
}

// resolveRate picks the effective discount rate: the customer's individual
// rate wins, then the wholesale tier matching the subtotal, then the rate
// table for the customer's type, then the configured default.
func resolveRate(in Input, subtotal decimal.Decimal, cfg Config) decimal.Decimal {
	if in.CustomerRate.IsPositive() {
		return in.CustomerRate
	}
	if in.CustomerType == customer.TypeWholesale {
		tier := decimal.Zero
		for _, t := range cfg.WholesaleTiers {
			if subtotal.GreaterThanOrEqual(t.MinSubtotal) {
				tier = t.Rate
			}
		}
		if tier.IsPositive() {
			return tier
		}
	}
	if r, ok := cfg.RatesByType[in.CustomerType]; ok && r.IsPositive() {
		return r
	}
	return cfg.DefaultDiscountRate
}
