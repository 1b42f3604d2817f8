package billing

import (
	"context"
	"testing"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
)

func TestUpdateSettingsRejectsForeignKeys(t *testing.T) {
	repo := &stubSettingsRepo{}
	svc, err := NewService(ServiceParams{Repo: repo, Cache: NewSettingsCache(repo)})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	err = svc.UpdateSettings(context.Background(), map[string]string{"search.radius": "5"})
	if err == nil {
		t.Fatal("expected error for non-billing key")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatal("nothing should be persisted on validation failure")
	}
}

func TestUpdateSettingsRejectsMalformedValue(t *testing.T) {
	repo := &stubSettingsRepo{}
	svc, _ := NewService(ServiceParams{Repo: repo, Cache: NewSettingsCache(repo)})

	err := svc.UpdateSettings(context.Background(), map[string]string{KeyEscrowExpiryDays: "soon"})
	if err == nil {
		t.Fatal("expected error for malformed value")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateSettingsInvalidatesBeforeReturning(t *testing.T) {
	repo := &stubSettingsRepo{}
	cache := NewSettingsCache(repo)
	svc, _ := NewService(ServiceParams{Repo: repo, Cache: cache})
	ctx := context.Background()

	before, err := cache.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if before.EscrowExpiryDays != 30 {
		t.Fatalf("expected default expiry 30, got %d", before.EscrowExpiryDays)
	}

	if err := svc.UpdateSettings(ctx, map[string]string{KeyEscrowExpiryDays: "14"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, err := cache.Load(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after.EscrowExpiryDays != 14 {
		t.Fatalf("read after acknowledged write observed stale value %d", after.EscrowExpiryDays)
	}
}

func TestUpdateSettingsRejectsInvertedThresholds(t *testing.T) {
	repo := &stubSettingsRepo{}
	cache := NewSettingsCache(repo)
	svc, _ := NewService(ServiceParams{Repo: repo, Cache: cache})
	ctx := context.Background()

	err := svc.UpdateSettings(ctx, map[string]string{
		KeyPremiumThresholdCents: "300000000",
		KeyLuxuryThresholdCents:  "200000000",
	})
	if err == nil {
		t.Fatal("expected error for inverted thresholds")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatal("nothing should be persisted on validation failure")
	}
	if _, err := cache.Load(ctx); err != nil {
		t.Fatalf("settings reads must keep working after a rejected write: %v", err)
	}
}

func TestUpdateSettingsValidatesAgainstStoredRows(t *testing.T) {
	repo := &stubSettingsRepo{rows: map[string]string{KeyLuxuryThresholdCents: "150000000"}}
	cache := NewSettingsCache(repo)
	svc, _ := NewService(ServiceParams{Repo: repo, Cache: cache})
	ctx := context.Background()

	// Raising the premium threshold past the stored luxury threshold would
	// make every later read fail, so the write is checked against the merged
	// rows and rejected up front.
	err := svc.UpdateSettings(ctx, map[string]string{KeyPremiumThresholdCents: "160000000"})
	if err == nil {
		t.Fatal("expected error for premium threshold above stored luxury threshold")
	}
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatal("nothing should be persisted on validation failure")
	}
	if _, err := cache.Load(ctx); err != nil {
		t.Fatalf("settings reads must keep working after a rejected write: %v", err)
	}
}

func TestParseSettingsRejectsInvertedThresholds(t *testing.T) {
	_, err := ParseSettings(map[string]string{
		KeyPremiumThresholdCents: "300000000",
		KeyLuxuryThresholdCents:  "200000000",
	})
	if err == nil {
		t.Fatal("expected error for inverted thresholds")
	}
}

func TestSettingsFlattenRoundTrip(t *testing.T) {
	original := DefaultSettings()
	flat := original.Flatten()

	if flat[KeyPremiumThresholdCents] != "100000000" {
		t.Fatalf("unexpected premium threshold %s", flat[KeyPremiumThresholdCents])
	}
	if flat["billing.limit.pro.wanted_ad_limit"] != "-1" {
		t.Fatalf("unlimited should flatten to -1, got %s", flat["billing.limit.pro.wanted_ad_limit"])
	}

	parsed, err := ParseSettings(flat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !parsed.TierTable(enums.SubscriptionTierPro).Limits[FeatureWantedAdLimit].IsUnlimited() {
		t.Fatal("round trip lost the unlimited pro limit")
	}
	if bound, _ := parsed.TierTable(enums.SubscriptionTierFree).Limits[FeatureWantedAdLimit].Bound(); bound != 3 {
		t.Fatalf("round trip changed free limit, got %d", bound)
	}
}
