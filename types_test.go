package gate

import (
	"encoding/json"
	"math/big"
	"testing"
)

func TestEVMPayloadDecoding(t *testing.T) {
	auth := EVMAuthorization{
		From:        "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		To:          "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
		Value:       "1000000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000600",
		Nonce:       "0x0000000000000000000000000000000000000000000000000000000000000001",
	}

	t.Run("typed payload", func(t *testing.T) {
		p := PaymentPayload{
			X402Version: X402Version,
			Scheme:      "exact",
			Network:     "base-sepolia",
			Payload:     &EVMPayload{Signature: "0xabc", Authorization: auth},
		}
		evm, err := p.EVMPayload()
		if err != nil {
			t.Fatalf("EVMPayload() error: %v", err)
		}
		if evm.Authorization.Value != "1000000" {
			t.Errorf("value = %s, want 1000000", evm.Authorization.Value)
		}
	})

	t.Run("json round-trip payload", func(t *testing.T) {
		p := PaymentPayload{
			X402Version: X402Version,
			Scheme:      "exact",
			Network:     "base-sepolia",
			Payload:     &EVMPayload{Signature: "0xabc", Authorization: auth},
		}
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var decoded PaymentPayload
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		// After JSON decoding the payload is a map, not a typed struct.
		evm, err := decoded.EVMPayload()
		if err != nil {
			t.Fatalf("EVMPayload() error: %v", err)
		}
		if evm.Signature != "0xabc" {
			t.Errorf("signature = %s, want 0xabc", evm.Signature)
		}
		if evm.Authorization.Nonce != auth.Nonce {
			t.Errorf("nonce = %s, want %s", evm.Authorization.Nonce, auth.Nonce)
		}
	})

	t.Run("missing authorization rejected", func(t *testing.T) {
		p := PaymentPayload{Payload: map[string]any{"signature": "0xabc"}}
		if _, err := p.EVMPayload(); err == nil {
			t.Error("expected error for payload without authorization")
		}
	})
}

func TestSVMPayloadDecoding(t *testing.T) {
	p := PaymentPayload{
		X402Version: X402Version,
		Scheme:      "exact",
		Network:     "solana",
		Payload:     map[string]any{"transaction": "AQIDBA=="},
	}
	svm, err := p.SVMPayload()
	if err != nil {
		t.Fatalf("SVMPayload() error: %v", err)
	}
	if svm.Transaction != "AQIDBA==" {
		t.Errorf("transaction = %s", svm.Transaction)
	}

	empty := PaymentPayload{Payload: map[string]any{}}
	if _, err := empty.SVMPayload(); err == nil {
		t.Error("expected error for payload without transaction")
	}
}

func TestParseAtomicAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "1000000", want: 1000000},
		{in: "0", want: 0},
		{in: "-5", wantErr: true},
		{in: "1.5", wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAtomicAmount(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAtomicAmount(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAtomicAmount(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got.Int64() != tt.want {
			t.Errorf("ParseAtomicAmount(%q) = %v, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatAtomicAmount(t *testing.T) {
	if got := FormatAtomicAmount(big.NewInt(1500000), 6); got != "1.500000" {
		t.Errorf("FormatAtomicAmount(1500000, 6) = %s, want 1.500000", got)
	}
	if got := FormatAtomicAmount(nil, 6); got != "0" {
		t.Errorf("FormatAtomicAmount(nil, 6) = %s, want 0", got)
	}
}
