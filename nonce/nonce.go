// Package nonce tracks consumed payment authorization nonces per payer and
// network to block replay. Consumption must be atomic: of two concurrent
// claims on the same nonce, exactly one succeeds.
package nonce

import (
	"context"
	"time"
)

// Registry is the replay-protection store. Entries are keyed by
// (payer, network, nonce) and may be garbage-collected only after their
// expiry, which callers set to the authorization's validBefore — after that
// instant the authorization is unusable regardless of registry state.
type Registry interface {
	// IsFresh reports whether the nonce has not been consumed yet.
	// It is a read-only pre-check; only Consume claims the nonce.
	IsFresh(ctx context.Context, payer, network, nonce string) (bool, error)

	// Consume atomically claims the nonce, recording it until expiresAt.
	// Returns gate.ErrReplayedNonce if the nonce was already consumed,
	// including when a concurrent caller won the claim.
	Consume(ctx context.Context, payer, network, nonce string, expiresAt time.Time) error
}

// Key builds the composite registry key.
func Key(payer, network, nonce string) string {
	return payer + "|" + network + "|" + nonce
}
