package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
)

// SubscriptionSource resolves a user's subscription record. A (nil, nil)
// return means the user has never subscribed.
type SubscriptionSource interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

// GateParams groups dependencies for the feature gate.
type GateParams struct {
	Subscriptions SubscriptionSource
	Cache         *SettingsCache
}

// Gate answers entitlement questions for product code. It owns no mutable
// state beyond the shared settings cache.
type Gate struct {
	subscriptions SubscriptionSource
	cache         *SettingsCache
}

// NewGate builds a feature gate.
func NewGate(params GateParams) (*Gate, error) {
	if params.Subscriptions == nil {
		return nil, errors.New("subscriptions source is required")
	}
	if params.Cache == nil {
		return nil, errors.New("settings cache is required")
	}
	return &Gate{subscriptions: params.Subscriptions, cache: params.Cache}, nil
}

// EffectiveTier resolves the tier the user is entitled to right now. No
// subscription record, or a subscription that is not currently active,
// degrades to FREE rather than erroring.
func (g *Gate) EffectiveTier(ctx context.Context, userID uuid.UUID) (enums.SubscriptionTier, error) {
	sub, err := g.subscriptions.FindByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return enums.SubscriptionTierFree, nil
	}
	if sub.Tier == enums.SubscriptionTierPro && sub.Status == enums.SubscriptionStatusActive {
		return enums.SubscriptionTierPro, nil
	}
	return enums.SubscriptionTierFree, nil
}

// LimitFor returns the configured limit for the user's effective tier.
func (g *Gate) LimitFor(ctx context.Context, userID uuid.UUID, feature FeatureKey) (Limit, error) {
	tier, err := g.EffectiveTier(ctx, userID)
	if err != nil {
		return Limit{}, err
	}
	settings, err := g.cache.Load(ctx)
	if err != nil {
		return Limit{}, err
	}
	table := settings.TierTable(tier)
	limit, ok := table.Limits[feature]
	if !ok {
		return Limit{}, pkgerrors.New(pkgerrors.CodeNotFound, "unknown feature limit").
			WithDetails(map[string]any{"feature": string(feature)})
	}
	return limit, nil
}

// FlagFor returns the boolean feature flag for the user's effective tier.
// Unconfigured flags read as disabled.
func (g *Gate) FlagFor(ctx context.Context, userID uuid.UUID, flag string) (bool, error) {
	tier, err := g.EffectiveTier(ctx, userID)
	if err != nil {
		return false, err
	}
	settings, err := g.cache.Load(ctx)
	if err != nil {
		return false, err
	}
	return settings.TierTable(tier).Flags[flag], nil
}
