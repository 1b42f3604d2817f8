package enums

import "fmt"

// SubscriptionTier is the local entitlement level a user pays for.
type SubscriptionTier string

const (
	SubscriptionTierFree SubscriptionTier = "free"
	SubscriptionTierPro  SubscriptionTier = "pro"
)

func (t SubscriptionTier) String() string {
	return string(t)
}

func (t SubscriptionTier) IsValid() bool {
	return t == SubscriptionTierFree || t == SubscriptionTierPro
}

func ParseSubscriptionTier(value string) (SubscriptionTier, error) {
	switch SubscriptionTier(value) {
	case SubscriptionTierFree:
		return SubscriptionTierFree, nil
	case SubscriptionTierPro:
		return SubscriptionTierPro, nil
	}
	return "", fmt.Errorf("invalid subscription tier %q", value)
}

// SubscriptionStatus mirrors the billing provider's subscription state. Local
// business logic never sets it directly; the webhook synchronizer owns it.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

var validSubscriptionStatuses = []SubscriptionStatus{
	SubscriptionStatusActive,
	SubscriptionStatusPastDue,
	SubscriptionStatusCanceled,
	SubscriptionStatusIncomplete,
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

func (s SubscriptionStatus) IsValid() bool {
	for _, candidate := range validSubscriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	for _, candidate := range validSubscriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}
