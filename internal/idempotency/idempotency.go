// Package idempotency records one-shot claims so a stock mutation for an order
// runs at most once, even when the same order is submitted or cancelled twice.
package idempotency

import (
	"context"
	"sync"
	"time"
)

type Claimer interface {
	// Claim returns true if the key was free and is now held for ttl.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a key so a later call can claim it again.
	Release(ctx context.Context, key string) error
}

type MemoryClaimer struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{claims: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if exp, ok := m.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.claims[key] = now.Add(ttl)
	m.sweep(now)
	return true, nil
}

func (m *MemoryClaimer) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.claims, key)
	m.mu.Unlock()
	return nil
}

// sweep drops expired claims; caller holds mu.
func (m *MemoryClaimer) sweep(now time.Time) {
	for k, exp := range m.claims {
		if !now.Before(exp) {
			delete(m.claims, k)
		}
	}
}
