package nonce

import (
	"context"
	"fmt"
	"sync"
	"time"

	gate "github.com/mark3labs/x402-gate"
)

// MemoryRegistry is a single-process Registry backed by a mutex-guarded map.
// Suitable for tests and single-instance deployments; multi-instance
// deployments need the Redis registry, since replay protection must hold
// across processes.
type MemoryRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// IsFresh implements Registry.
func (r *MemoryRegistry) IsFresh(_ context.Context, payer, network, nonce string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()
	_, consumed := r.entries[Key(payer, network, nonce)]
	return !consumed, nil
}

// Consume implements Registry.
func (r *MemoryRegistry) Consume(_ context.Context, payer, network, nonce string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked()
	key := Key(payer, network, nonce)
	if _, consumed := r.entries[key]; consumed {
		return fmt.Errorf("%w: %s on %s", gate.ErrReplayedNonce, nonce, network)
	}
	r.entries[key] = expiresAt
	return nil
}

// sweepLocked drops entries whose protected authorization has itself expired.
func (r *MemoryRegistry) sweepLocked() {
	now := r.now()
	for key, expiresAt := range r.entries {
		if now.After(expiresAt) {
			delete(r.entries, key)
		}
	}
}

// Len returns the number of live entries, for tests and introspection.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()
	return len(r.entries)
}
