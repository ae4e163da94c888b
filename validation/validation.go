// Package validation performs structural validation of payment requirements
// and payment envelopes before any cryptographic or ledger work happens.
package validation

import (
	"fmt"
	"math/big"
	"regexp"

	gate "github.com/mark3labs/x402-gate"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars).
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset).
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	// nonceRegex matches a 32-byte hex nonce with 0x prefix.
	nonceRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// ValidateAmount validates that an amount string is a valid positive integer
// in atomic units.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}
	return nil
}

// ValidateAddress validates an address against the network's address format.
func ValidateAddress(address string, network gate.Network) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch network.Type() {
	case gate.NetworkTypeEVM:
		if !evmAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
		}
		return nil
	case gate.NetworkTypeSVM:
		if !solanaAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid Solana address format: %s (expected base58 string 32-44 chars)", address)
		}
		return nil
	default:
		return fmt.Errorf("unsupported network type for address validation: %d", network.Type())
	}
}

// ValidateRequirement performs comprehensive validation of a payment requirement.
func ValidateRequirement(req gate.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	network, err := gate.ParseNetwork(req.Network)
	if err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateAddress(req.PayTo, network); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}
	if req.Asset == "" {
		return fmt.Errorf("invalid requirement: asset address cannot be empty")
	}
	if err := ValidateAddress(req.Asset, network); err != nil {
		return fmt.Errorf("invalid requirement: asset %w", err)
	}

	switch req.Scheme {
	case "exact":
	case "":
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirement: unsupported scheme %s", req.Scheme)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	if network.Type() == gate.NetworkTypeEVM {
		name, _ := req.Extra["name"].(string)
		version, _ := req.Extra["version"].(string)
		if name == "" || version == "" {
			return fmt.Errorf("invalid requirement: EVM network %s requires EIP-712 domain parameters", req.Network)
		}
	}

	return nil
}

// ValidateEVMAuthorization checks the structural shape of an EIP-3009
// authorization. Time-window and amount semantics are the verifier's job;
// this only rejects malformed input.
func ValidateEVMAuthorization(auth gate.EVMAuthorization) error {
	if !evmAddressRegex.MatchString(auth.From) {
		return fmt.Errorf("invalid authorization: from address %s", auth.From)
	}
	if !evmAddressRegex.MatchString(auth.To) {
		return fmt.Errorf("invalid authorization: to address %s", auth.To)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || value.Sign() < 0 {
		return fmt.Errorf("invalid authorization: value %s", auth.Value)
	}

	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return fmt.Errorf("invalid authorization: validAfter %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return fmt.Errorf("invalid authorization: validBefore %s", auth.ValidBefore)
	}
	if validBefore.Cmp(validAfter) <= 0 {
		return fmt.Errorf("invalid authorization: validBefore %s is not after validAfter %s", auth.ValidBefore, auth.ValidAfter)
	}

	if !nonceRegex.MatchString(auth.Nonce) {
		return fmt.Errorf("invalid authorization: nonce must be a 32-byte hex string")
	}

	return nil
}

// ValidatePayment checks a parsed payment envelope against the protocol:
// version, scheme, and a supported network.
func ValidatePayment(payment gate.PaymentPayload) error {
	if payment.X402Version != gate.X402Version {
		return fmt.Errorf("%w: %d", gate.ErrUnsupportedVersion, payment.X402Version)
	}
	if payment.Scheme != "exact" {
		return fmt.Errorf("%w: %s", gate.ErrUnsupportedScheme, payment.Scheme)
	}
	if _, err := gate.ParseNetwork(payment.Network); err != nil {
		return err
	}
	return nil
}
