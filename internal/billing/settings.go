package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
)

// Setting keys as stored in billing_settings. All keys live under the
// "billing." prefix.
const (
	KeyPrefix = "billing."

	KeyPremiumThresholdCents = "billing.fee.premium_threshold_cents"
	KeyLuxuryThresholdCents  = "billing.fee.luxury_threshold_cents"
	KeyStandardFeeCents      = "billing.fee.standard_cents"
	KeyPremiumFeeCents       = "billing.fee.premium_cents"
	KeyLuxuryFeeCents        = "billing.fee.luxury_cents"
	KeyEscrowExpiryDays      = "billing.escrow.expiry_days"
	KeyProMonthlyPriceCents  = "billing.price.pro_monthly_cents"

	limitKeyPrefix = "billing.limit."
	flagKeyPrefix  = "billing.flag."
)

// FeatureKey identifies a gated feature limit or flag.
type FeatureKey string

const (
	FeatureWantedAdLimit        FeatureKey = "wantedAdLimit"
	FeatureSpecificAddressLimit FeatureKey = "specificAddressLimit"
)

// storage column names for numeric limits, keyed by feature
var limitColumnByFeature = map[FeatureKey]string{
	FeatureWantedAdLimit:        "wanted_ad_limit",
	FeatureSpecificAddressLimit: "specific_address_limit",
}

// TierFeatures holds the resolved feature table for one subscription tier.
type TierFeatures struct {
	Limits map[FeatureKey]Limit
	Flags  map[string]bool
}

// Settings is the typed view over the flat billing_settings rows.
type Settings struct {
	PremiumThresholdCents int64
	LuxuryThresholdCents  int64
	StandardFeeCents      int64
	PremiumFeeCents       int64
	LuxuryFeeCents        int64
	EscrowExpiryDays      int
	ProMonthlyPriceCents  int64
	Tiers                 map[enums.SubscriptionTier]TierFeatures
}

// DefaultSettings mirrors the seed rows shipped in the initial migration.
func DefaultSettings() *Settings {
	return &Settings{
		PremiumThresholdCents: 100_000_000,
		LuxuryThresholdCents:  200_000_000,
		StandardFeeCents:      29_900,
		PremiumFeeCents:       49_900,
		LuxuryFeeCents:        79_900,
		EscrowExpiryDays:      30,
		ProMonthlyPriceCents:  2_900,
		Tiers: map[enums.SubscriptionTier]TierFeatures{
			enums.SubscriptionTierFree: {
				Limits: map[FeatureKey]Limit{
					FeatureWantedAdLimit:        Bounded(3),
					FeatureSpecificAddressLimit: Bounded(1),
				},
				Flags: map[string]bool{"priority_support": false},
			},
			enums.SubscriptionTierPro: {
				Limits: map[FeatureKey]Limit{
					FeatureWantedAdLimit:        Unlimited(),
					FeatureSpecificAddressLimit: Unlimited(),
				},
				Flags: map[string]bool{"priority_support": true},
			},
		},
	}
}

// ParseSettings overlays the stored rows on top of the defaults. The -1
// sentinel only exists in the stored representation and is converted to
// the Limit union here.
func ParseSettings(rows map[string]string) (*Settings, error) {
	s := DefaultSettings()
	for key, value := range rows {
		if err := s.apply(key, value); err != nil {
			return nil, err
		}
	}
	if s.PremiumThresholdCents > s.LuxuryThresholdCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "premium threshold exceeds luxury threshold")
	}
	return s, nil
}

func (s *Settings) apply(key, value string) error {
	switch key {
	case KeyPremiumThresholdCents:
		return assignInt64(key, value, &s.PremiumThresholdCents)
	case KeyLuxuryThresholdCents:
		return assignInt64(key, value, &s.LuxuryThresholdCents)
	case KeyStandardFeeCents:
		return assignInt64(key, value, &s.StandardFeeCents)
	case KeyPremiumFeeCents:
		return assignInt64(key, value, &s.PremiumFeeCents)
	case KeyLuxuryFeeCents:
		return assignInt64(key, value, &s.LuxuryFeeCents)
	case KeyProMonthlyPriceCents:
		return assignInt64(key, value, &s.ProMonthlyPriceCents)
	case KeyEscrowExpiryDays:
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			return invalidSetting(key, value)
		}
		s.EscrowExpiryDays = days
		return nil
	}

	if strings.HasPrefix(key, limitKeyPrefix) {
		return s.applyLimit(key, value)
	}
	if strings.HasPrefix(key, flagKeyPrefix) {
		return s.applyFlag(key, value)
	}

	// Unknown billing.* keys are tolerated so new settings can land ahead
	// of the code that reads them.
	return nil
}

func (s *Settings) applyLimit(key, value string) error {
	tier, column, err := splitTierKey(key, limitKeyPrefix)
	if err != nil {
		return err
	}
	feature, ok := featureByColumn(column)
	if !ok {
		return nil
	}
	stored, err := strconv.Atoi(value)
	if err != nil || stored < -1 {
		return invalidSetting(key, value)
	}
	features := s.tierFeatures(tier)
	features.Limits[feature] = LimitFromStored(stored)
	return nil
}

func (s *Settings) applyFlag(key, value string) error {
	tier, flag, err := splitTierKey(key, flagKeyPrefix)
	if err != nil {
		return err
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return invalidSetting(key, value)
	}
	features := s.tierFeatures(tier)
	features.Flags[flag] = enabled
	return nil
}

func (s *Settings) tierFeatures(tier enums.SubscriptionTier) TierFeatures {
	features, ok := s.Tiers[tier]
	if !ok {
		features = TierFeatures{Limits: map[FeatureKey]Limit{}, Flags: map[string]bool{}}
		s.Tiers[tier] = features
	}
	return features
}

// TierTable resolves the feature table for a tier, falling back to FREE
// when the tier has no configured table.
func (s *Settings) TierTable(tier enums.SubscriptionTier) TierFeatures {
	if features, ok := s.Tiers[tier]; ok {
		return features
	}
	return s.Tiers[enums.SubscriptionTierFree]
}

// Flatten serializes the typed settings back to the stored key/value form,
// reintroducing the -1 sentinel for unlimited limits.
func (s *Settings) Flatten() map[string]string {
	out := map[string]string{
		KeyPremiumThresholdCents: strconv.FormatInt(s.PremiumThresholdCents, 10),
		KeyLuxuryThresholdCents:  strconv.FormatInt(s.LuxuryThresholdCents, 10),
		KeyStandardFeeCents:      strconv.FormatInt(s.StandardFeeCents, 10),
		KeyPremiumFeeCents:       strconv.FormatInt(s.PremiumFeeCents, 10),
		KeyLuxuryFeeCents:        strconv.FormatInt(s.LuxuryFeeCents, 10),
		KeyEscrowExpiryDays:      strconv.Itoa(s.EscrowExpiryDays),
		KeyProMonthlyPriceCents:  strconv.FormatInt(s.ProMonthlyPriceCents, 10),
	}
	for tier, features := range s.Tiers {
		for feature, limit := range features.Limits {
			column, ok := limitColumnByFeature[feature]
			if !ok {
				continue
			}
			out[limitKeyPrefix+string(tier)+"."+column] = strconv.Itoa(limit.Stored())
		}
		for flag, enabled := range features.Flags {
			out[flagKeyPrefix+string(tier)+"."+flag] = strconv.FormatBool(enabled)
		}
	}
	return out
}

func splitTierKey(key, prefix string) (enums.SubscriptionTier, string, error) {
	rest := strings.TrimPrefix(key, prefix)
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", invalidSetting(key, "")
	}
	tier := enums.SubscriptionTier(parts[0])
	if !tier.IsValid() {
		return "", "", invalidSetting(key, parts[0])
	}
	return tier, parts[1], nil
}

func featureByColumn(column string) (FeatureKey, bool) {
	for feature, col := range limitColumnByFeature {
		if col == column {
			return feature, true
		}
	}
	return "", false
}

func assignInt64(key, value string, dest *int64) error {
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return invalidSetting(key, value)
	}
	*dest = parsed
	return nil
}

func invalidSetting(key, value string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid billing setting %s", key)).
		WithDetails(map[string]any{"key": key, "value": value})
}
