// Package facilitator defines the contract with the external settlement
// service and provides an HTTP client for it. The verifier trusts the
// facilitator's verdict but enforces its own pre-checks first.
package facilitator

import (
	"context"

	gate "github.com/mark3labs/x402-gate"
)

// Interface is the facilitator contract for payment verification and
// settlement.
type Interface interface {
	// Verify checks a payment authorization without executing the transaction.
	Verify(ctx context.Context, payment gate.PaymentPayload, requirement gate.PaymentRequirement) (*VerifyResponse, error)

	// Settle executes a verified payment on the blockchain.
	Settle(ctx context.Context, payment gate.PaymentPayload, requirement gate.PaymentRequirement) (*gate.SettlementResponse, error)

	// Supported queries the facilitator for supported payment types.
	Supported(ctx context.Context) (*SupportedResponse, error)

	// Health reports whether the facilitator considers itself operational.
	// Used for operational visibility only, never for gating decisions.
	Health(ctx context.Context) (bool, error)
}

// VerifyResponse contains the payment verification result from the facilitator.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer"`
}

// SupportedKind describes a supported payment type with its configuration.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse lists all payment types supported by the facilitator.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Request is the payload sent to the facilitator verify and settle endpoints.
type Request struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      gate.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements gate.PaymentRequirement `json:"paymentRequirements"`
}

// AuthorizationProvider returns an Authorization header value for facilitator
// requests. Useful for tokens that need periodic refresh.
type AuthorizationProvider func() (string, error)
