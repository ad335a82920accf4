package cache

import (
	"context"
	"sync"
	"time"

	"posledger/backend/internal/domain"
)

// Receipt is a completed order remembered under an idempotency key, with
// the fingerprint of the request that produced it.
type Receipt struct {
	Order       domain.Order `json:"order"`
	Fingerprint string       `json:"fingerprint"`
}

// OrderCache remembers the outcome of placeOrder requests by client
// idempotency key so a retried request replays the first receipt.
type OrderCache interface {
	Get(ctx context.Context, key string) (*Receipt, bool, error)
	// Claim reserves key for one in-flight request. It reports false when
	// another request already holds the key.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, receipt Receipt, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type NoopOrderCache struct{}

func (NoopOrderCache) Get(_ context.Context, _ string) (*Receipt, bool, error) {
	return nil, false, nil
}

func (NoopOrderCache) Claim(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (NoopOrderCache) Set(_ context.Context, _ string, _ Receipt, _ time.Duration) error {
	return nil
}

func (NoopOrderCache) Release(_ context.Context, _ string) error {
	return nil
}

// sweepInterval bounds how often Claim and Set scan for expired entries.
const sweepInterval = time.Minute

type entry struct {
	receipt   Receipt
	expiresAt time.Time
}

// MemoryOrderCache is the single-process OrderCache used when no redis
// address is configured. Expired claims and receipts are dropped by a sweep
// that Claim and Set run at most once per sweepInterval.
type MemoryOrderCache struct {
	mu        sync.Mutex
	now       func() time.Time
	lastSweep time.Time
	claims    map[string]time.Time
	orders    map[string]entry
}

func NewMemoryOrderCache() *MemoryOrderCache {
	return &MemoryOrderCache{
		now:    time.Now,
		claims: make(map[string]time.Time),
		orders: make(map[string]entry),
	}
}

func (c *MemoryOrderCache) Get(_ context.Context, key string) (*Receipt, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.orders[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.orders, key)
		return nil, false, nil
	}
	receipt := e.receipt
	return &receipt, true, nil
}

func (c *MemoryOrderCache) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	if until, ok := c.claims[key]; ok && now.Before(until) {
		return false, nil
	}
	c.claims[key] = now.Add(ttl)
	return true, nil
}

func (c *MemoryOrderCache) Set(_ context.Context, key string, receipt Receipt, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	c.orders[key] = entry{receipt: receipt, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryOrderCache) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, key)
	return nil
}

func (c *MemoryOrderCache) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < sweepInterval {
		return
	}
	c.lastSweep = now
	for key, until := range c.claims {
		if !now.Before(until) {
			delete(c.claims, key)
		}
	}
	for key, e := range c.orders {
		if !now.Before(e.expiresAt) {
			delete(c.orders, key)
		}
	}
}
