package subscriptions

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
)

const fallbackPeriod = 30 * 24 * time.Hour

// BuildSubscriptionFromStripe maps a Stripe subscription into the canonical model.
func BuildSubscriptionFromStripe(stripeSub *stripe.Subscription, userID uuid.UUID, proPriceID string) (*models.Subscription, error) {
	if stripeSub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}
	status, err := mapStripeStatus(stripeSub.Status)
	if err != nil {
		return nil, err
	}

	start, end := periodFromSubscription(stripeSub)
	subID := stripeSub.ID

	return &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		Tier:                 TierFromPriceID(determinePriceID(stripeSub), proPriceID),
		Status:               status,
		StripeCustomerID:     customerID(stripeSub),
		StripeSubscriptionID: &subID,
		CurrentPeriodStart:   start,
		CurrentPeriodEnd:     end,
		CancelAtPeriodEnd:    stripeSub.CancelAtPeriodEnd,
	}, nil
}

// UpdateSubscriptionFromStripe mutates the stored subscription with new Stripe data.
// Tier, status and period bounds are copied verbatim from the event payload.
func UpdateSubscriptionFromStripe(target *models.Subscription, stripeSub *stripe.Subscription, proPriceID string) error {
	if target == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "target subscription is nil")
	}
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "stripe subscription is nil")
	}
	status, err := mapStripeStatus(stripeSub.Status)
	if err != nil {
		return err
	}

	subID := stripeSub.ID
	target.StripeSubscriptionID = &subID
	if cust := customerID(stripeSub); cust != "" {
		target.StripeCustomerID = cust
	}
	target.Tier = TierFromPriceID(determinePriceID(stripeSub), proPriceID)
	target.Status = status
	target.CurrentPeriodStart, target.CurrentPeriodEnd = periodFromSubscription(stripeSub)
	target.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
	return nil
}

// UserIDFromMetadata extracts the user ID attached to the Stripe metadata at
// checkout time.
func UserIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	if metadata == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription metadata is required")
	}
	raw, ok := metadata["user_id"]
	if !ok || strings.TrimSpace(raw) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "user_id missing from metadata")
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id metadata")
	}
	return id, nil
}

// TierFromPriceID resolves the local tier for a Stripe price.
func TierFromPriceID(priceID, proPriceID string) enums.SubscriptionTier {
	if priceID != "" && priceID == proPriceID {
		return enums.SubscriptionTierPro
	}
	return enums.SubscriptionTierFree
}

// IsActiveStatus reports whether the status grants paid entitlements.
func IsActiveStatus(status enums.SubscriptionStatus) bool {
	return status == enums.SubscriptionStatusActive
}

// periodFromSubscription reads the billing period off the first billable line
// item. Events that omit it fall back to now + 30 days.
func periodFromSubscription(sub *stripe.Subscription) (*time.Time, *time.Time) {
	if sub != nil && sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item != nil && item.CurrentPeriodStart != 0 && item.CurrentPeriodEnd != 0 {
			start := time.Unix(item.CurrentPeriodStart, 0).UTC()
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			return &start, &end
		}
	}
	now := time.Now().UTC()
	end := now.Add(fallbackPeriod)
	return &now, &end
}

func determinePriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price != nil {
		return sub.Items.Data[0].Price.ID
	}
	return ""
}

func customerID(sub *stripe.Subscription) string {
	if sub == nil || sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}

func mapStripeStatus(raw stripe.SubscriptionStatus) (enums.SubscriptionStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(raw)))
	if normalized == "" {
		return enums.SubscriptionStatusIncomplete, nil
	}
	if mapped, ok := stripeStatusAliases[normalized]; ok {
		return mapped, nil
	}
	if parsed, err := enums.ParseSubscriptionStatus(normalized); err == nil {
		return parsed, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeDependency, "unrecognized stripe subscription status").
		WithDetails(map[string]any{"status": normalized})
}

var stripeStatusAliases = map[string]enums.SubscriptionStatus{
	"trialing":           enums.SubscriptionStatusActive,
	"unpaid":             enums.SubscriptionStatusPastDue,
	"incomplete_expired": enums.SubscriptionStatusIncomplete,
	"paused":             enums.SubscriptionStatusCanceled,
}
