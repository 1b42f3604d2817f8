package billing

import "testing"

func TestLimitFromStoredSentinel(t *testing.T) {
	if !LimitFromStored(-1).IsUnlimited() {
		t.Fatal("stored -1 should map to unlimited")
	}
	limit := LimitFromStored(5)
	if bound, ok := limit.Bound(); !ok || bound != 5 {
		t.Fatalf("stored 5 should map to Bounded(5), got %v %v", bound, ok)
	}
	if Unlimited().Stored() != -1 {
		t.Fatal("unlimited should round trip to -1")
	}
	if Bounded(3).Stored() != 3 {
		t.Fatal("bounded should round trip to its value")
	}
}

func TestLimitRemaining(t *testing.T) {
	limit := Bounded(3)

	rest := limit.Remaining(1)
	if bound, _ := rest.Bound(); bound != 2 {
		t.Fatalf("expected 2 remaining, got %d", bound)
	}

	rest = limit.Remaining(10)
	if bound, _ := rest.Bound(); bound != 0 {
		t.Fatalf("over-consumed limit should clamp to 0, got %d", bound)
	}

	if !Unlimited().Remaining(1_000_000).IsUnlimited() {
		t.Fatal("unlimited remains unlimited")
	}
}

func TestLimitAllows(t *testing.T) {
	limit := Bounded(3)
	if !limit.Allows(2) {
		t.Fatal("usage below the bound should be allowed")
	}
	if limit.Allows(3) {
		t.Fatal("usage at the bound should be refused")
	}
	if !Unlimited().Allows(1_000_000) {
		t.Fatal("unlimited always allows")
	}
}
