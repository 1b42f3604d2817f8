package billing

import (
	"context"
	"sync"
)

// SettingsCache is the process-wide cache over billing_settings. Reads are
// served from memory; writes go through the admin service which invalidates
// before acknowledging, so a read after a write never observes stale values.
type SettingsCache struct {
	repo Repository

	mu      sync.RWMutex
	current *Settings
}

// NewSettingsCache builds a cache backed by the given repository.
func NewSettingsCache(repo Repository) *SettingsCache {
	return &SettingsCache{repo: repo}
}

// Load returns the cached settings, filling the cache from storage on a miss.
func (c *SettingsCache) Load(ctx context.Context) (*Settings, error) {
	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()
	if current != nil {
		return current, nil
	}
	return c.refresh(ctx)
}

// Invalidate drops the cached snapshot. The next Load re-reads storage.
func (c *SettingsCache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *SettingsCache) refresh(ctx context.Context) (*Settings, error) {
	rows, err := c.repo.LoadSettings(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseSettings(rows)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.current = parsed
	c.mu.Unlock()
	return parsed, nil
}
