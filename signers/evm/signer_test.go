package evm

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/internal/eip3009"
)

// Test private key (DO NOT use in production)
const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const baseUSDC = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

func TestNewSigner(t *testing.T) {
	tests := []struct {
		name    string
		opts    []SignerOption
		wantErr error
	}{
		{
			name: "valid signer with all options",
			opts: []SignerOption{
				WithPrivateKey(testPrivateKeyHex),
				WithNetwork("base"),
				WithToken(baseUSDC, "USDC", 6),
				WithPriority(1),
				WithMaxAmountPerCall("1000000"),
			},
		},
		{
			name: "valid signer with 0x prefix",
			opts: []SignerOption{
				WithPrivateKey("0x" + testPrivateKeyHex),
				WithNetwork("base"),
				WithToken(baseUSDC, "USDC", 6),
			},
		},
		{
			name: "missing private key",
			opts: []SignerOption{
				WithNetwork("base"),
				WithToken(baseUSDC, "USDC", 6),
			},
			wantErr: gate.ErrInvalidKey,
		},
		{
			name: "missing network",
			opts: []SignerOption{
				WithPrivateKey(testPrivateKeyHex),
				WithToken(baseUSDC, "USDC", 6),
			},
			wantErr: gate.ErrInvalidNetwork,
		},
		{
			name: "solana network rejected",
			opts: []SignerOption{
				WithPrivateKey(testPrivateKeyHex),
				WithNetwork("solana"),
				WithToken(baseUSDC, "USDC", 6),
			},
			wantErr: gate.ErrInvalidNetwork,
		},
		{
			name: "missing tokens",
			opts: []SignerOption{
				WithPrivateKey(testPrivateKeyHex),
				WithNetwork("base"),
			},
			wantErr: gate.ErrNoTokens,
		},
		{
			name: "invalid private key",
			opts: []SignerOption{
				WithPrivateKey("invalid"),
				WithNetwork("base"),
				WithToken(baseUSDC, "USDC", 6),
			},
			wantErr: gate.ErrInvalidKey,
		},
		{
			name: "invalid max amount",
			opts: []SignerOption{
				WithPrivateKey(testPrivateKeyHex),
				WithNetwork("base"),
				WithToken(baseUSDC, "USDC", 6),
				WithMaxAmountPerCall("invalid"),
			},
			wantErr: gate.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewSigner(tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if signer == nil {
				t.Fatal("expected signer to be non-nil")
			}
		})
	}
}

func TestSignerInterface(t *testing.T) {
	signer, err := NewSigner(
		WithPrivateKey(testPrivateKeyHex),
		WithNetwork("base"),
		WithToken(baseUSDC, "USDC", 6),
		WithPriority(5),
		WithMaxAmountPerCall("1000000"),
	)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	if network := signer.Network(); network != "base" {
		t.Errorf("expected network 'base', got %q", network)
	}
	if scheme := signer.Scheme(); scheme != "exact" {
		t.Errorf("expected scheme 'exact', got %q", scheme)
	}
	if priority := signer.GetPriority(); priority != 5 {
		t.Errorf("expected priority 5, got %d", priority)
	}
	tokens := signer.GetTokens()
	if len(tokens) != 1 || tokens[0].Symbol != "USDC" {
		t.Errorf("unexpected tokens: %+v", tokens)
	}
	if max := signer.GetMaxAmount(); max == nil || max.Cmp(big.NewInt(1000000)) != 0 {
		t.Errorf("unexpected max amount: %v", max)
	}
	if signer.Address() != crypto.PubkeyToAddress(signer.privateKey.PublicKey) {
		t.Error("address must derive from the private key")
	}
}

func TestCanSign(t *testing.T) {
	signer, err := NewSigner(
		WithPrivateKey(testPrivateKeyHex),
		WithNetwork("base"),
		WithToken(baseUSDC, "USDC", 6),
	)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	tests := []struct {
		name        string
		requirement gate.PaymentRequirement
		want        bool
	}{
		{
			name: "matching network and token",
			requirement: gate.PaymentRequirement{
				Scheme: "exact", Network: "base", Asset: baseUSDC, MaxAmountRequired: "100000",
			},
			want: true,
		},
		{
			name: "case insensitive token address",
			requirement: gate.PaymentRequirement{
				Scheme: "exact", Network: "base",
				Asset:             "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
				MaxAmountRequired: "100000",
			},
			want: true,
		},
		{
			name: "wrong network",
			requirement: gate.PaymentRequirement{
				Scheme: "exact", Network: "polygon", Asset: baseUSDC, MaxAmountRequired: "100000",
			},
			want: false,
		},
		{
			name: "wrong scheme",
			requirement: gate.PaymentRequirement{
				Scheme: "streaming", Network: "base", Asset: baseUSDC, MaxAmountRequired: "100000",
			},
			want: false,
		},
		{
			name: "wrong token",
			requirement: gate.PaymentRequirement{
				Scheme: "exact", Network: "base",
				Asset:             "0x0000000000000000000000000000000000000000",
				MaxAmountRequired: "100000",
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signer.CanSign(&tt.requirement); got != tt.want {
				t.Errorf("CanSign() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSign(t *testing.T) {
	signer, err := NewSigner(
		WithPrivateKey(testPrivateKeyHex),
		WithNetwork("base"),
		WithToken(baseUSDC, "USDC", 6),
		WithMaxAmountPerCall("1000000"),
	)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	requirement := gate.PaymentRequirement{
		Scheme:            "exact",
		Network:           "base",
		Asset:             baseUSDC,
		MaxAmountRequired: "500000",
		PayTo:             "0x1234567890123456789012345678901234567890",
		MaxTimeoutSeconds: 60,
		Extra:             map[string]interface{}{"name": "USD Coin", "version": "2"},
	}

	payment, err := signer.Sign(&requirement)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if payment.X402Version != gate.X402Version || payment.Network != "base" {
		t.Errorf("unexpected payment envelope: %+v", payment)
	}

	payload, err := payment.EVMPayload()
	if err != nil {
		t.Fatalf("failed to extract payload: %v", err)
	}
	if payload.Authorization.From != signer.Address().Hex() {
		t.Errorf("from %s, want %s", payload.Authorization.From, signer.Address().Hex())
	}
	if payload.Authorization.Value != "500000" {
		t.Errorf("value %s, want 500000", payload.Authorization.Value)
	}

	// The signature must recover to the signer's address under the same
	// domain that was signed.
	typed, err := authorizationFromPayload(payload.Authorization)
	if err != nil {
		t.Fatalf("failed to parse authorization: %v", err)
	}
	digest, err := eip3009.Digest(eip3009.Domain{
		Name:              "USD Coin",
		Version:           "2",
		ChainID:           big.NewInt(8453),
		VerifyingContract: typedAddress(baseUSDC),
	}, typed)
	if err != nil {
		t.Fatalf("failed to compute digest: %v", err)
	}
	sig := decodeHexSig(t, payload.Signature)
	sig[64] -= 27
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatalf("failed to recover: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != signer.Address() {
		t.Error("signature does not recover to signer address")
	}

	// Exceeding the per-call cap must be rejected.
	over := requirement
	over.MaxAmountRequired = "2000000"
	if _, err := signer.Sign(&over); !errors.Is(err, gate.ErrAmountExceeded) {
		t.Errorf("expected ErrAmountExceeded, got %v", err)
	}

	// A requirement the signer cannot satisfy must be rejected.
	wrong := requirement
	wrong.Network = "polygon"
	if _, err := signer.Sign(&wrong); !errors.Is(err, gate.ErrInvalidRequirements) {
		t.Errorf("expected ErrInvalidRequirements, got %v", err)
	}
}

func authorizationFromPayload(auth gate.EVMAuthorization) (eip3009.Authorization, error) {
	value, _ := new(big.Int).SetString(auth.Value, 10)
	validAfter, _ := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, _ := new(big.Int).SetString(auth.ValidBefore, 10)
	return eip3009.Authorization{
		From:        common.HexToAddress(auth.From),
		To:          common.HexToAddress(auth.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       common.HexToHash(auth.Nonce),
	}, nil
}

func typedAddress(addr string) common.Address {
	return common.HexToAddress(addr)
}

func decodeHexSig(t *testing.T, signature string) []byte {
	t.Helper()
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		t.Fatalf("signature is not hex: %v", err)
	}
	return sig
}
