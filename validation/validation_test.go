package validation

import (
	"strings"
	"testing"

	gate "github.com/mark3labs/x402-gate"
)

const (
	validEVMAddress    = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	validSolanaAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	validNonce         = "0x0000000000000000000000000000000000000000000000000000000000000001"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"1000000", false},
		{"1", false},
		{"0", true},
		{"-1", true},
		{"", true},
		{"1.5", true},
		{"abc", true},
	}
	for _, tt := range tests {
		err := ValidateAmount(tt.amount)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAmount(%q) error = %v, wantErr %v", tt.amount, err, tt.wantErr)
		}
	}
}

func TestValidateAddress(t *testing.T) {
	if err := ValidateAddress(validEVMAddress, gate.NetworkBase); err != nil {
		t.Errorf("valid EVM address rejected: %v", err)
	}
	if err := ValidateAddress(validSolanaAddress, gate.NetworkSolana); err != nil {
		t.Errorf("valid Solana address rejected: %v", err)
	}
	if err := ValidateAddress(validSolanaAddress, gate.NetworkBase); err == nil {
		t.Error("Solana address accepted for EVM network")
	}
	if err := ValidateAddress(validEVMAddress, gate.NetworkSolana); err == nil {
		t.Error("EVM address accepted for Solana network")
	}
	if err := ValidateAddress("", gate.NetworkBase); err == nil {
		t.Error("empty address accepted")
	}
}

func validRequirement() gate.PaymentRequirement {
	cfg := gate.NetworkBaseSepolia.Config()
	return gate.PaymentRequirement{
		Scheme:            "exact",
		Network:           cfg.ID,
		MaxAmountRequired: "10000",
		Asset:             cfg.USDCAddress,
		PayTo:             validEVMAddress,
		Resource:          "https://api.example.com/v1/chat",
		MaxTimeoutSeconds: 300,
		Extra:             map[string]interface{}{"name": cfg.TokenName, "version": cfg.TokenVersion},
	}
}

func TestValidateRequirement(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := ValidateRequirement(validRequirement()); err != nil {
			t.Errorf("valid requirement rejected: %v", err)
		}
	})

	mutations := []struct {
		name   string
		mutate func(*gate.PaymentRequirement)
	}{
		{"zero amount", func(r *gate.PaymentRequirement) { r.MaxAmountRequired = "0" }},
		{"unknown network", func(r *gate.PaymentRequirement) { r.Network = "ethereum" }},
		{"bad payTo", func(r *gate.PaymentRequirement) { r.PayTo = "0x123" }},
		{"empty asset", func(r *gate.PaymentRequirement) { r.Asset = "" }},
		{"bad scheme", func(r *gate.PaymentRequirement) { r.Scheme = "subscription" }},
		{"empty scheme", func(r *gate.PaymentRequirement) { r.Scheme = "" }},
		{"negative timeout", func(r *gate.PaymentRequirement) { r.MaxTimeoutSeconds = -1 }},
		{"missing domain params", func(r *gate.PaymentRequirement) { r.Extra = nil }},
	}
	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequirement()
			tt.mutate(&req)
			if err := ValidateRequirement(req); err == nil {
				t.Errorf("expected error for %s", tt.name)
			}
		})
	}
}

func TestValidateEVMAuthorization(t *testing.T) {
	valid := gate.EVMAuthorization{
		From:        validEVMAddress,
		To:          "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		Value:       "10000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000600",
		Nonce:       validNonce,
	}
	if err := ValidateEVMAuthorization(valid); err != nil {
		t.Fatalf("valid authorization rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*gate.EVMAuthorization)
		substr string
	}{
		{"bad from", func(a *gate.EVMAuthorization) { a.From = "nope" }, "from"},
		{"bad to", func(a *gate.EVMAuthorization) { a.To = "nope" }, "to"},
		{"negative value", func(a *gate.EVMAuthorization) { a.Value = "-1" }, "value"},
		{"bad validAfter", func(a *gate.EVMAuthorization) { a.ValidAfter = "x" }, "validAfter"},
		{"window inverted", func(a *gate.EVMAuthorization) { a.ValidBefore = a.ValidAfter }, "validBefore"},
		{"short nonce", func(a *gate.EVMAuthorization) { a.Nonce = "0x01" }, "nonce"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := valid
			tt.mutate(&auth)
			err := ValidateEVMAuthorization(auth)
			if err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("error %q does not mention %q", err, tt.substr)
			}
		})
	}
}

func TestValidatePayment(t *testing.T) {
	base := gate.PaymentPayload{X402Version: gate.X402Version, Scheme: "exact", Network: "base"}
	if err := ValidatePayment(base); err != nil {
		t.Errorf("valid payment rejected: %v", err)
	}

	wrongVersion := base
	wrongVersion.X402Version = 1
	if err := ValidatePayment(wrongVersion); err == nil {
		t.Error("expected error for unsupported version")
	}

	wrongScheme := base
	wrongScheme.Scheme = "max"
	if err := ValidatePayment(wrongScheme); err == nil {
		t.Error("expected error for unsupported scheme")
	}

	wrongNetwork := base
	wrongNetwork.Network = "dogecoin"
	if err := ValidatePayment(wrongNetwork); err == nil {
		t.Error("expected error for unsupported network")
	}
}
