package facilitator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	gate "github.com/mark3labs/x402-gate"
)

func testPayment() gate.PaymentPayload {
	return gate.PaymentPayload{
		X402Version: gate.X402Version,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: &gate.EVMPayload{
			Signature: "0xsig",
			Authorization: gate.EVMAuthorization{
				From:  "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
				To:    "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
				Value: "10000",
				Nonce: "0x01",
			},
		},
	}
}

func testRequirement() gate.PaymentRequirement {
	return gate.PaymentRequirement{
		Scheme:            "exact",
		Network:           "base-sepolia",
		MaxAmountRequired: "10000",
	}
}

func TestClientVerify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.X402Version != gate.X402Version {
			t.Errorf("x402Version = %d", req.X402Version)
		}
		if req.PaymentRequirements.MaxAmountRequired != "10000" {
			t.Errorf("requirement amount = %s", req.PaymentRequirements.MaxAmountRequired)
		}
		json.NewEncoder(w).Encode(VerifyResponse{IsValid: true, Payer: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"})
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL}
	resp, err := client.Verify(context.Background(), testPayment(), testRequirement())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !resp.IsValid || resp.Payer == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClientSettle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/settle" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(gate.SettlementResponse{
			Success:     true,
			Transaction: "0xhash",
			Network:     "base-sepolia",
			Payer:       "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		})
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL}
	resp, err := client.Settle(context.Background(), testPayment(), testRequirement())
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !resp.Success || resp.Transaction != "0xhash" {
		t.Errorf("unexpected settlement: %+v", resp)
	}
}

func TestClientRejectionIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "invalid payment", http.StatusBadRequest)
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL}
	_, err := client.Verify(context.Background(), testPayment(), testRequirement())
	if !errors.Is(err, gate.ErrFacilitatorUnavailable) {
		t.Fatalf("expected facilitator error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("HTTP rejection was retried: %d calls", n)
	}
}

func TestClientRetriesTransportFailureOnce(t *testing.T) {
	var calls int32
	// Close the connection on the first attempt, succeed on the second.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		json.NewEncoder(w).Encode(VerifyResponse{IsValid: true, Payer: "0xabc"})
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL}
	resp, err := client.Verify(context.Background(), testPayment(), testRequirement())
	if err != nil {
		t.Fatalf("Verify after transient failure: %v", err)
	}
	if !resp.IsValid {
		t.Errorf("unexpected response: %+v", resp)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestClientSupportedAndHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/supported":
			json.NewEncoder(w).Encode(SupportedResponse{Kinds: []SupportedKind{
				{X402Version: gate.X402Version, Scheme: "exact", Network: "base"},
			}})
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL}

	supported, err := client.Supported(context.Background())
	if err != nil {
		t.Fatalf("Supported: %v", err)
	}
	if len(supported.Kinds) != 1 || supported.Kinds[0].Network != "base" {
		t.Errorf("unexpected supported kinds: %+v", supported.Kinds)
	}

	healthy, err := client.Health(context.Background())
	if err != nil || !healthy {
		t.Errorf("Health = %v, %v; want true", healthy, err)
	}
}

func TestClientSendsAuthorization(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(VerifyResponse{IsValid: true})
	}))
	defer server.Close()

	t.Run("static header", func(t *testing.T) {
		client := &Client{BaseURL: server.URL, Authorization: "Bearer static-key"}
		if _, err := client.Verify(context.Background(), testPayment(), testRequirement()); err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if got != "Bearer static-key" {
			t.Errorf("Authorization = %q", got)
		}
	})

	t.Run("provider wins over static", func(t *testing.T) {
		client := &Client{
			BaseURL:               server.URL,
			Authorization:         "Bearer static-key",
			AuthorizationProvider: func() (string, error) { return "Bearer dynamic-key", nil },
		}
		if _, err := client.Verify(context.Background(), testPayment(), testRequirement()); err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if got != "Bearer dynamic-key" {
			t.Errorf("Authorization = %q", got)
		}
	})
}

func TestJWTAuthProvider(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPEM := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	auth, err := NewJWTAuth("key-1", keyPEM, "https://facilitator.example.com")
	if err != nil {
		t.Fatalf("NewJWTAuth: %v", err)
	}

	value, err := auth.Provider()()
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if !strings.HasPrefix(value, "Bearer ") {
		t.Fatalf("provider value %q lacks Bearer prefix", value)
	}
	// Compact JWS has three dot-separated segments.
	if parts := strings.Split(strings.TrimPrefix(value, "Bearer "), "."); len(parts) != 3 {
		t.Errorf("token has %d segments, want 3", len(parts))
	}

	if _, err := NewJWTAuth("key-1", "not pem", "aud"); err == nil {
		t.Error("expected error for invalid PEM")
	}
	if _, err := NewJWTAuth("", keyPEM, "aud"); err == nil {
		t.Error("expected error for empty key ID")
	}
}
