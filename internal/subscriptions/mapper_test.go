package subscriptions

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
)

const testProPriceID = "price_pro_monthly"

func stripeSubFixture(status stripe.SubscriptionStatus, priceID string, periodStart, periodEnd int64) *stripe.Subscription {
	sub := &stripe.Subscription{
		ID:       "sub_123",
		Status:   status,
		Customer: &stripe.Customer{ID: "cus_123"},
	}
	if priceID != "" {
		sub.Items = &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					Price:              &stripe.Price{ID: priceID},
					CurrentPeriodStart: periodStart,
					CurrentPeriodEnd:   periodEnd,
				},
			},
		}
	}
	return sub
}

func TestBuildSubscriptionCopiesPeriodFromLineItem(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	stripeSub := stripeSubFixture(stripe.SubscriptionStatusActive, testProPriceID, start.Unix(), end.Unix())

	built, err := BuildSubscriptionFromStripe(stripeSub, uuid.New(), testProPriceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if built.Tier != enums.SubscriptionTierPro {
		t.Fatalf("expected pro tier, got %s", built.Tier)
	}
	if built.Status != enums.SubscriptionStatusActive {
		t.Fatalf("expected active status, got %s", built.Status)
	}
	if built.CurrentPeriodStart == nil || !built.CurrentPeriodStart.Equal(start) {
		t.Fatalf("period start not copied from line item: %v", built.CurrentPeriodStart)
	}
	if built.CurrentPeriodEnd == nil || !built.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("period end not copied from line item: %v", built.CurrentPeriodEnd)
	}
	if built.StripeCustomerID != "cus_123" {
		t.Fatalf("customer id not copied: %s", built.StripeCustomerID)
	}
}

func TestBuildSubscriptionFallsBackToThirtyDays(t *testing.T) {
	stripeSub := stripeSubFixture(stripe.SubscriptionStatusActive, "", 0, 0)

	before := time.Now().UTC()
	built, err := BuildSubscriptionFromStripe(stripeSub, uuid.New(), testProPriceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := time.Now().UTC()

	if built.CurrentPeriodStart == nil || built.CurrentPeriodEnd == nil {
		t.Fatal("fallback period should be populated")
	}
	if built.CurrentPeriodStart.Before(before.Add(-time.Second)) || built.CurrentPeriodStart.After(after.Add(time.Second)) {
		t.Fatalf("fallback start should be now, got %v", built.CurrentPeriodStart)
	}
	gap := built.CurrentPeriodEnd.Sub(*built.CurrentPeriodStart)
	if gap != fallbackPeriod {
		t.Fatalf("fallback period should be 30 days, got %v", gap)
	}
	if built.Tier != enums.SubscriptionTierFree {
		t.Fatalf("missing line item should map to free tier, got %s", built.Tier)
	}
}

func TestMapStripeStatusAliases(t *testing.T) {
	cases := []struct {
		raw  stripe.SubscriptionStatus
		want enums.SubscriptionStatus
	}{
		{stripe.SubscriptionStatusActive, enums.SubscriptionStatusActive},
		{stripe.SubscriptionStatusTrialing, enums.SubscriptionStatusActive},
		{stripe.SubscriptionStatusPastDue, enums.SubscriptionStatusPastDue},
		{stripe.SubscriptionStatusUnpaid, enums.SubscriptionStatusPastDue},
		{stripe.SubscriptionStatusCanceled, enums.SubscriptionStatusCanceled},
		{stripe.SubscriptionStatusIncomplete, enums.SubscriptionStatusIncomplete},
		{stripe.SubscriptionStatusIncompleteExpired, enums.SubscriptionStatusIncomplete},
	}
	for _, tc := range cases {
		got, err := mapStripeStatus(tc.raw)
		if err != nil {
			t.Fatalf("status %s: unexpected error: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("status %s: expected %s, got %s", tc.raw, tc.want, got)
		}
	}

	if _, err := mapStripeStatus("definitely_not_a_status"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestUpdateSubscriptionOverwritesVerbatim(t *testing.T) {
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	stripeSub := stripeSubFixture(stripe.SubscriptionStatusPastDue, testProPriceID, start.Unix(), end.Unix())
	stripeSub.CancelAtPeriodEnd = true

	target, err := BuildSubscriptionFromStripe(stripeSubFixture(stripe.SubscriptionStatusActive, testProPriceID, 1, 2), uuid.New(), testProPriceID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := UpdateSubscriptionFromStripe(target, stripeSub, testProPriceID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Status != enums.SubscriptionStatusPastDue {
		t.Fatalf("status not copied verbatim, got %s", target.Status)
	}
	if !target.CancelAtPeriodEnd {
		t.Fatal("cancel_at_period_end not copied")
	}
	if target.CurrentPeriodEnd == nil || !target.CurrentPeriodEnd.Equal(end) {
		t.Fatalf("period end not updated: %v", target.CurrentPeriodEnd)
	}
}

func TestUserIDFromMetadata(t *testing.T) {
	want := uuid.New()
	got, err := UserIDFromMetadata(map[string]string{"user_id": want.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}

	if _, err := UserIDFromMetadata(nil); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for nil metadata, got %v", err)
	}
	if _, err := UserIDFromMetadata(map[string]string{"user_id": "nope"}); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for malformed id, got %v", err)
	}
}

func TestTierFromPriceID(t *testing.T) {
	if TierFromPriceID(testProPriceID, testProPriceID) != enums.SubscriptionTierPro {
		t.Fatal("pro price should map to pro tier")
	}
	if TierFromPriceID("price_other", testProPriceID) != enums.SubscriptionTierFree {
		t.Fatal("unknown price should map to free tier")
	}
	if TierFromPriceID("", testProPriceID) != enums.SubscriptionTierFree {
		t.Fatal("empty price should map to free tier")
	}
}
