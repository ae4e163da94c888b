// Package encoding provides base64(JSON) codecs for x402 payment data as it
// travels in the X-PAYMENT and X-PAYMENT-RESPONSE headers.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	gate "github.com/mark3labs/x402-gate"
)

func encode(v interface{}, what string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decode(encoded string, v interface{}, what string) error {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode %s base64: %w", what, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return nil
}

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string
// suitable for the X-PAYMENT header.
func EncodePayment(payment gate.PaymentPayload) (string, error) {
	return encode(payment, "payment")
}

// DecodePayment parses an X-PAYMENT header value into a PaymentPayload.
func DecodePayment(encoded string) (gate.PaymentPayload, error) {
	var payment gate.PaymentPayload
	if err := decode(encoded, &payment, "payment"); err != nil {
		return payment, err
	}
	return payment, nil
}

// EncodeSettlement converts a SettlementResponse to a base64-encoded JSON
// string suitable for the X-PAYMENT-RESPONSE header. The encoded value is the
// settlement receipt returned to the paying caller.
func EncodeSettlement(settlement gate.SettlementResponse) (string, error) {
	return encode(settlement, "settlement")
}

// DecodeSettlement parses an X-PAYMENT-RESPONSE header value.
func DecodeSettlement(encoded string) (gate.SettlementResponse, error) {
	var settlement gate.SettlementResponse
	if err := decode(encoded, &settlement, "settlement"); err != nil {
		return settlement, err
	}
	return settlement, nil
}

// EncodeRequirements converts a PaymentRequirementsResponse to base64 JSON.
func EncodeRequirements(requirements gate.PaymentRequirementsResponse) (string, error) {
	return encode(requirements, "requirements")
}

// DecodeRequirements parses an encoded PaymentRequirementsResponse.
func DecodeRequirements(encoded string) (gate.PaymentRequirementsResponse, error) {
	var requirements gate.PaymentRequirementsResponse
	if err := decode(encoded, &requirements, "requirements"); err != nil {
		return requirements, err
	}
	return requirements, nil
}
