package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/redis"
)

// DefaultTTL keeps processed event ids around long enough to cover Stripe's
// retry window.
const DefaultTTL = 72 * time.Hour

// IdempotencyGuard dedupes webhook deliveries by event id.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark returns true when the event was already seen. Unseen events are
// marked atomically so concurrent deliveries race on the SetNX, not on a
// read-then-write.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete unmarks an event so a retry can be processed after a handler failure.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	return g.store.Del(ctx, key)
}
