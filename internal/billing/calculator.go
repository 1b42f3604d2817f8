package billing

import (
	"context"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
)

// Property fee tier labels returned by TierName.
const (
	FeeTierStandard = "standard"
	FeeTierPremium  = "premium"
	FeeTierLuxury   = "luxury"
)

var centsPerUnit = decimal.NewFromInt(100)

// Calculator resolves finder's fees from property valuations. It reads the
// live settings on every call so admin threshold changes apply immediately.
type Calculator struct {
	cache *SettingsCache
}

// NewCalculator builds a fee calculator over the shared settings cache.
func NewCalculator(cache *SettingsCache) *Calculator {
	return &Calculator{cache: cache}
}

// CalculateFee maps a property valuation (in currency units) to the fee in
// cents via a strictly ordered three step function. A missing valuation is a
// caller error; callers substitute their own fallback before calling.
func (c *Calculator) CalculateFee(ctx context.Context, valuation *decimal.Decimal) (int64, error) {
	settings, valuationCents, err := c.resolve(ctx, valuation)
	if err != nil {
		return 0, err
	}
	switch {
	case valuationCents < settings.PremiumThresholdCents:
		return settings.StandardFeeCents, nil
	case valuationCents < settings.LuxuryThresholdCents:
		return settings.PremiumFeeCents, nil
	default:
		return settings.LuxuryFeeCents, nil
	}
}

// TierName returns the display label matching CalculateFee's step selection.
func (c *Calculator) TierName(ctx context.Context, valuation *decimal.Decimal) (string, error) {
	settings, valuationCents, err := c.resolve(ctx, valuation)
	if err != nil {
		return "", err
	}
	switch {
	case valuationCents < settings.PremiumThresholdCents:
		return FeeTierStandard, nil
	case valuationCents < settings.LuxuryThresholdCents:
		return FeeTierPremium, nil
	default:
		return FeeTierLuxury, nil
	}
}

func (c *Calculator) resolve(ctx context.Context, valuation *decimal.Decimal) (*Settings, int64, error) {
	if valuation == nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "property valuation is required")
	}
	if valuation.IsNegative() {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "property valuation must not be negative")
	}
	settings, err := c.cache.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	return settings, valuation.Mul(centsPerUnit).IntPart(), nil
}
