// Package settings supplies pricing configuration snapshots from the
// key-value settings store. The store itself is written only by the
// administrative settings endpoints; the core reads one immutable snapshot
// per operation.
package settings

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
	"github.com/loyaltydesk/backoffice/internal/domain/pricing"
)

// Well-known settings keys.
const (
	KeyDiscountRates  = "discount_rates"
	KeyPoints         = "points"
	KeyWholesaleTiers = "wholesale_tiers"
)

// ErrNotFound is returned when a settings key has no stored value.
var ErrNotFound = errors.New("setting not found")

// Setting is one key-value configuration row. Values are free-form JSON.
type Setting struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// Repository provides raw access to stored settings.
type Repository interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
	List(ctx context.Context) ([]Setting, error)
}

// Provider builds immutable pricing config snapshots.
type Provider interface {
	Snapshot(ctx context.Context) (pricing.Config, error)
}

// StoreProvider implements Provider on top of a Repository. Missing keys
// fall back to pricing.DefaultConfig values; only storage failures and
// malformed stored JSON are reported as errors.
type StoreProvider struct {
	repo Repository
}

// NewStoreProvider returns a StoreProvider backed by the given repository.
func NewStoreProvider(repo Repository) *StoreProvider {
	return &StoreProvider{repo: repo}
}

type ratesSetting struct {
	Default decimal.Decimal            `json:"default"`
	ByType  map[string]decimal.Decimal `json:"by_type"`
}

type pointsSetting struct {
	EarnRate        *decimal.Decimal `json:"earn_rate"`
	MinRedeemPoints *int64           `json:"min_redeem_points"`
	RedeemValue     *decimal.Decimal `json:"redeem_value"`
}

type tierSetting struct {
	MinSubtotal decimal.Decimal `json:"min_subtotal"`
	Rate        decimal.Decimal `json:"rate"`
}

// Snapshot reads the discount-rate table, points configuration, and
// wholesale tiers, merging them over the documented defaults.
func (p *StoreProvider) Snapshot(ctx context.Context) (pricing.Config, error) {
	cfg := pricing.DefaultConfig()

	raw, err := p.repo.Get(ctx, KeyDiscountRates)
	switch {
	case err == nil:
		var rs ratesSetting
		if err := json.Unmarshal(raw, &rs); err != nil {
			return cfg, errors.Wrap(err, "parse discount_rates setting")
		}
		if rs.Default.IsPositive() {
			cfg.DefaultDiscountRate = rs.Default
		}
		for t, r := range rs.ByType {
			cfg.RatesByType[customer.Type(t)] = r
		}
	case !errors.Is(err, ErrNotFound):
		return cfg, errors.Wrap(err, "load discount_rates setting")
	}

	raw, err = p.repo.Get(ctx, KeyPoints)
	switch {
	case err == nil:
		var ps pointsSetting
		if err := json.Unmarshal(raw, &ps); err != nil {
			return cfg, errors.Wrap(err, "parse points setting")
		}
		if ps.EarnRate != nil {
			cfg.EarnRate = *ps.EarnRate
		}
		if ps.MinRedeemPoints != nil {
			cfg.MinRedeemPoints = *ps.MinRedeemPoints
		}
		if ps.RedeemValue != nil {
			cfg.RedeemValue = *ps.RedeemValue
		}
	case !errors.Is(err, ErrNotFound):
		return cfg, errors.Wrap(err, "load points setting")
	}

	raw, err = p.repo.Get(ctx, KeyWholesaleTiers)
	switch {
	case err == nil:
		var ts []tierSetting
		if err := json.Unmarshal(raw, &ts); err != nil {
			return cfg, errors.Wrap(err, "parse wholesale_tiers setting")
		}
		cfg.WholesaleTiers = make([]pricing.WholesaleTier, len(ts))
		for i, t := range ts {
			cfg.WholesaleTiers[i] = pricing.WholesaleTier{MinSubtotal: t.MinSubtotal, Rate: t.Rate}
		}
		// Rate resolution expects tiers ascending by threshold.
		sort.Slice(cfg.WholesaleTiers, func(i, j int) bool {
			return cfg.WholesaleTiers[i].MinSubtotal.LessThan(cfg.WholesaleTiers[j].MinSubtotal)
		})
	case !errors.Is(err, ErrNotFound):
		return cfg, errors.Wrap(err, "load wholesale_tiers setting")
	}

	return cfg, nil
}
