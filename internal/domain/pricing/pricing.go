package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
)

// WholesaleTier grants a discount rate once the cart subtotal reaches the
// tier's threshold. Tiers apply to wholesale-type customers only.
type WholesaleTier struct {
	MinSubtotal decimal.Decimal
	Rate        decimal.Decimal // percent
}

// Config is an immutable pricing configuration snapshot. It is read once per
// operation and never mutated in place; missing settings fall back to the
// defaults below.
type Config struct {
	// DefaultDiscountRate applies when neither the customer nor their type
	// carries a rate. Percent.
	DefaultDiscountRate decimal.Decimal
	// RatesByType maps customer types to their default discount rates.
	RatesByType map[customer.Type]decimal.Decimal
	// WholesaleTiers holds subtotal-thresholded rates for wholesale
	// customers, sorted ascending by MinSubtotal.
	WholesaleTiers []WholesaleTier
	// EarnRate is the number of points earned per currency unit of a
	// completed order's total.
	EarnRate decimal.Decimal
	// MinRedeemPoints is the smallest redemption the dashboard offers to
	// customers. The core does not enforce it; settlement clamps only to
	// the available balance.
	MinRedeemPoints int64
	// RedeemValue is the monetary value of a single redeemed point.
	RedeemValue decimal.Decimal
}

// DefaultConfig returns the documented fallback configuration: 25% discount,
// 1 point earned per currency unit, 100 point minimum redemption, and a
// redemption value of 0.01 per point.
func DefaultConfig() Config {
	return Config{
		DefaultDiscountRate: decimal.NewFromInt(25),
		RatesByType:         map[customer.Type]decimal.Decimal{},
		EarnRate:            decimal.NewFromInt(1),
		MinRedeemPoints:     100,
		RedeemValue:         decimal.New(1, -2), // 0.01
	}
}

// EarnedPoints converts a completed order total into freshly earned points:
// floor(total * earnRate). Totals are floored at zero by Calculate, so the
// result is never negative.
func EarnedPoints(total decimal.Decimal, cfg Config) int64 {
	return total.Mul(cfg.EarnRate).Floor().IntPart()
}
