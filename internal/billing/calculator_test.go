package billing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
)

type stubSettingsRepo struct {
	rows  map[string]string
	err   error
	loads int
	saved map[string]string
}

func (s *stubSettingsRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubSettingsRepo) LoadSettings(ctx context.Context) (map[string]string, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

func (s *stubSettingsRepo) UpsertSettings(ctx context.Context, values map[string]string) error {
	if s.saved == nil {
		s.saved = map[string]string{}
	}
	for key, value := range values {
		s.saved[key] = value
		if s.rows == nil {
			s.rows = map[string]string{}
		}
		s.rows[key] = value
	}
	return nil
}

func newTestCalculator(rows map[string]string) (*Calculator, *SettingsCache, *stubSettingsRepo) {
	repo := &stubSettingsRepo{rows: rows}
	cache := NewSettingsCache(repo)
	return NewCalculator(cache), cache, repo
}

func mustDecimal(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return &d
}

func TestCalculateFeePremiumBand(t *testing.T) {
	calc, _, _ := newTestCalculator(nil)

	fee, err := calc.CalculateFee(context.Background(), mustDecimal(t, "1200000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 49900 {
		t.Fatalf("expected premium fee 49900, got %d", fee)
	}

	tier, err := calc.TierName(context.Background(), mustDecimal(t, "1200000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != FeeTierPremium {
		t.Fatalf("expected tier %q, got %q", FeeTierPremium, tier)
	}
}

func TestCalculateFeeStepBoundaries(t *testing.T) {
	calc, _, _ := newTestCalculator(nil)
	ctx := context.Background()

	cases := []struct {
		valuation string
		fee       int64
		tier      string
	}{
		{"999999.99", 29900, FeeTierStandard},
		{"1000000", 49900, FeeTierPremium},
		{"1999999.99", 49900, FeeTierPremium},
		{"2000000", 79900, FeeTierLuxury},
		{"9000000", 79900, FeeTierLuxury},
		{"0", 29900, FeeTierStandard},
	}
	for _, tc := range cases {
		fee, err := calc.CalculateFee(ctx, mustDecimal(t, tc.valuation))
		if err != nil {
			t.Fatalf("valuation %s: unexpected error: %v", tc.valuation, err)
		}
		if fee != tc.fee {
			t.Fatalf("valuation %s: expected fee %d, got %d", tc.valuation, tc.fee, fee)
		}
		tier, err := calc.TierName(ctx, mustDecimal(t, tc.valuation))
		if err != nil {
			t.Fatalf("valuation %s: unexpected error: %v", tc.valuation, err)
		}
		if tier != tc.tier {
			t.Fatalf("valuation %s: expected tier %q, got %q", tc.valuation, tc.tier, tier)
		}
	}
}

func TestCalculateFeeMissingValuation(t *testing.T) {
	calc, _, _ := newTestCalculator(nil)

	_, err := calc.CalculateFee(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for missing valuation")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCalculateFeeReflectsSettingsWrite(t *testing.T) {
	calc, cache, repo := newTestCalculator(nil)
	ctx := context.Background()

	fee, err := calc.CalculateFee(ctx, mustDecimal(t, "500000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 29900 {
		t.Fatalf("expected standard fee 29900, got %d", fee)
	}

	repo.rows = map[string]string{KeyStandardFeeCents: "19900"}
	cache.Invalidate()

	fee, err = calc.CalculateFee(ctx, mustDecimal(t, "500000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 19900 {
		t.Fatalf("expected updated fee 19900, got %d", fee)
	}
}
