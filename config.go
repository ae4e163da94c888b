package gate

import (
	"fmt"
	"time"
)

// TimeoutConfig holds per-operation timeouts for facilitator calls.
// Verification is a quick pre-flight check; settlement waits on a blockchain
// transaction and needs more headroom.
type TimeoutConfig struct {
	// VerifyTimeout bounds facilitator verify calls.
	VerifyTimeout time.Duration

	// SettleTimeout bounds facilitator settle calls.
	SettleTimeout time.Duration

	// RequestTimeout bounds a whole gated request, including retries.
	RequestTimeout time.Duration
}

// DefaultTimeouts provides production defaults. Verification past five
// seconds is treated as failure rather than left pending.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// Validate checks the configuration for consistency.
func (c TimeoutConfig) Validate() error {
	if c.VerifyTimeout <= 0 {
		return fmt.Errorf("verify timeout must be positive, got %v", c.VerifyTimeout)
	}
	if c.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be positive, got %v", c.SettleTimeout)
	}
	if c.SettleTimeout < c.VerifyTimeout {
		return fmt.Errorf("settle timeout %v must not be shorter than verify timeout %v", c.SettleTimeout, c.VerifyTimeout)
	}
	return nil
}

// WithVerifyTimeout returns a copy with the verify timeout replaced.
func (c TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	c.VerifyTimeout = d
	return c
}

// WithSettleTimeout returns a copy with the settle timeout replaced.
func (c TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	c.SettleTimeout = d
	return c
}

// WithRequestTimeout returns a copy with the request timeout replaced.
func (c TimeoutConfig) WithRequestTimeout(d time.Duration) TimeoutConfig {
	c.RequestTimeout = d
	return c
}
