package gate

import "math/big"

// Signer represents a payment signer for a specific blockchain.
// Implementations handle chain-specific signing for EVM (EIP-3009 typed data)
// and SVM (partially signed Solana transactions) networks.
type Signer interface {
	// Network returns the blockchain network identifier (e.g., "base").
	Network() string

	// Scheme returns the payment scheme identifier (currently "exact").
	Scheme() string

	// CanSign checks if this signer can satisfy the given payment requirement.
	CanSign(requirement *PaymentRequirement) bool

	// Sign creates a signed payment payload for the given requirement.
	// Returns an error if signing fails or the amount exceeds configured limits.
	Sign(requirement *PaymentRequirement) (*PaymentPayload, error)

	// GetPriority returns the signer's priority level.
	// Lower numbers indicate higher priority.
	GetPriority() int

	// GetTokens returns the list of tokens supported by this signer.
	GetTokens() []TokenConfig

	// GetMaxAmount returns the per-call spending limit, or nil if unset.
	GetMaxAmount() *big.Int
}
