// Package gate implements the x402 pay-per-call protocol for metered API
// resources: per-endpoint payment requirements, signed off-chain payment
// authorizations, facilitator settlement, and the shared wire types used by
// the verifier, the price catalog, and the HTTP middleware.
package gate

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// X402Version is the protocol version carried by payment payloads and
// requirement documents.
const X402Version = 2

// PaymentRequirement represents a single payment option from a 402 response.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g., "base", "solana").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in atomic units (e.g., 6-decimal
	// USDC base units).
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address (EVM) or mint address (Solana).
	Asset string `json:"asset"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType"`

	// MaxTimeoutSeconds is the validity period for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra contains scheme-specific additional data. For EVM chains this
	// carries the EIP-3009 domain parameters ("name", "version").
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirementsResponse represents the complete 402 response body.
type PaymentRequirementsResponse struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Error is a human-readable error message.
	Error string `json:"error,omitempty"`

	// Accepts is an array of payment options the server will accept.
	Accepts []PaymentRequirement `json:"accepts"`

	// Pricing describes the quoted price, including any subscription
	// discount that was applied. Omitted when no price is configured.
	Pricing *Pricing `json:"pricing,omitempty"`
}

// Pricing describes how the quoted price for a resource was derived.
type Pricing struct {
	// OriginalPrice is the undiscounted USD price.
	OriginalPrice string `json:"originalPrice"`

	// FinalPrice is the USD price after any subscription discount.
	FinalPrice string `json:"finalPrice"`

	// DiscountPercent is the applied discount percentage (0-100).
	DiscountPercent int `json:"discountPercent"`

	// DiscountApplied is true when an active subscription discount lowered
	// the price.
	DiscountApplied bool `json:"discountApplied"`
}

// PaymentPayload represents a signed payment attached to a request.
type PaymentPayload struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// Payload contains the blockchain-specific signed payment data.
	// For EVM: EVMPayload with signature and authorization.
	// For Solana: SVMPayload with a partially signed transaction.
	Payload interface{} `json:"payload"`
}

// EVMPayload returns the payload decoded as an EVM payment. The payload may
// arrive either as a typed struct (client side) or as a decoded JSON map
// (server side after header parsing); both are handled.
func (p PaymentPayload) EVMPayload() (*EVMPayload, error) {
	switch v := p.Payload.(type) {
	case *EVMPayload:
		return v, nil
	case EVMPayload:
		return &v, nil
	}

	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorization, err)
	}
	var evm EVMPayload
	if err := json.Unmarshal(raw, &evm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorization, err)
	}
	if evm.Signature == "" || evm.Authorization.From == "" {
		return nil, ErrInvalidAuthorization
	}
	return &evm, nil
}

// SVMPayload returns the payload decoded as a Solana payment.
func (p PaymentPayload) SVMPayload() (*SVMPayload, error) {
	switch v := p.Payload.(type) {
	case *SVMPayload:
		return v, nil
	case SVMPayload:
		return &v, nil
	}

	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorization, err)
	}
	var svm SVMPayload
	if err := json.Unmarshal(raw, &svm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuthorization, err)
	}
	if svm.Transaction == "" {
		return nil, ErrInvalidAuthorization
	}
	return &svm, nil
}

// EVMPayload represents an EVM payment with EIP-3009 authorization.
type EVMPayload struct {
	// Signature is the hex-encoded ECDSA signature.
	Signature string `json:"signature"`

	// Authorization contains the EIP-3009 transferWithAuthorization parameters.
	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization represents EIP-3009 transferWithAuthorization parameters.
// All numeric fields are decimal strings to survive JSON round-trips intact.
type EVMAuthorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// SVMPayload represents a Solana payment with a partially signed transaction.
type SVMPayload struct {
	// Transaction is the base64-encoded partially signed Solana transaction.
	Transaction string `json:"transaction"`
}

// SettlementResponse represents the facilitator's response after settlement.
// Its base64(JSON) encoding is the X-PAYMENT-RESPONSE header value.
type SettlementResponse struct {
	// Success indicates whether the payment was successfully settled.
	Success bool `json:"success"`

	// ErrorReason provides details if the payment failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction hash.
	Transaction string `json:"transaction,omitempty"`

	// Network is the blockchain network where the payment was settled.
	Network string `json:"network"`

	// Payer is the address that made the payment.
	Payer string `json:"payer"`
}

// TokenConfig represents configuration for a supported token.
type TokenConfig struct {
	// Address is the token contract address (EVM) or mint address (Solana).
	Address string

	// Symbol is the token symbol (e.g., "USDC").
	Symbol string

	// Decimals is the number of decimal places for the token.
	Decimals int

	// Priority is the token's priority level within the signer.
	// Lower numbers indicate higher priority.
	Priority int

	// Name is an optional human-readable token name.
	Name string
}

// ParseAtomicAmount parses a decimal string of atomic units into a *big.Int.
func ParseAtomicAmount(amount string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// FormatAtomicAmount renders atomic units as a decimal token amount.
// For example, 1500000 with 6 decimals becomes "1.500000".
func FormatAtomicAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	f := new(big.Float).SetInt(value)
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, divisor)
	return f.Text('f', decimals)
}
