package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/catalog"
	"github.com/mark3labs/x402-gate/encoding"
	"github.com/mark3labs/x402-gate/facilitator"
	"github.com/mark3labs/x402-gate/nonce"
	"github.com/mark3labs/x402-gate/signers/evm"
	"github.com/mark3labs/x402-gate/verifier"
)

// Hardhat account 0. Test-only key, never funded.
const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeFacilitator struct {
	verifyErr error
	settleErr error
}

func (f *fakeFacilitator) Verify(ctx context.Context, payment gate.PaymentPayload, req gate.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &facilitator.VerifyResponse{IsValid: true}, nil
}

func (f *fakeFacilitator) Settle(ctx context.Context, payment gate.PaymentPayload, req gate.PaymentRequirement) (*gate.SettlementResponse, error) {
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	return &gate.SettlementResponse{Success: true, Transaction: "0xdeadbeef", Network: payment.Network}, nil
}

func (f *fakeFacilitator) Supported(ctx context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{}, nil
}

func (f *fakeFacilitator) Health(ctx context.Context) (bool, error) {
	return true, nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(catalog.Config{
		BaseURL:  "https://api.example.com",
		Networks: []gate.Network{gate.NetworkBaseSepolia},
		EVMPayTo: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
	}, []catalog.Entry{
		{Method: "POST", Path: "/v1/analyze", PriceUSD: "1.00", Description: "Analyze a document"},
	})
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	return cat
}

// gatedServer wires the middleware in front of a handler that records the
// verification result placed in the request context.
func gatedServer(t *testing.T, fac facilitator.Interface) (*httptest.Server, *catalog.Catalog, **verifier.Result) {
	t.Helper()
	cat := testCatalog(t)
	v := verifier.New(cat, nonce.NewMemoryRegistry(), fac)

	var seen *verifier.Result
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PaymentFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := httptest.NewServer(NewMiddleware(&Config{Verifier: v})(handler))
	t.Cleanup(server.Close)
	return server, cat, &seen
}

func signedPaymentHeader(t *testing.T, cat *catalog.Catalog) string {
	t.Helper()
	reqs, _, err := cat.RequirementsFor(context.Background(), "POST", "/v1/analyze", "")
	if err != nil || len(reqs) != 1 {
		t.Fatalf("failed to resolve requirements: %v (%d)", err, len(reqs))
	}

	signer, err := evm.NewSigner(
		evm.WithPrivateKey(testPrivateKeyHex),
		evm.WithNetwork("base-sepolia"),
		evm.WithToken(reqs[0].Asset, "USDC", 6),
	)
	if err != nil {
		t.Fatalf("failed to build signer: %v", err)
	}
	payment, err := signer.Sign(&reqs[0])
	if err != nil {
		t.Fatalf("failed to sign payment: %v", err)
	}
	header, err := encoding.EncodePayment(*payment)
	if err != nil {
		t.Fatalf("failed to encode payment: %v", err)
	}
	return header
}

func TestMiddlewareFreeEndpoint(t *testing.T) {
	server, _, seen := gatedServer(t, &fakeFacilitator{})

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if *seen != nil {
		t.Error("free endpoint should not carry a payment result in context")
	}
}

func TestMiddlewareMissingPayment(t *testing.T) {
	server, _, _ := gatedServer(t, &fakeFacilitator{})

	resp, err := http.Post(server.URL+"/v1/analyze", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}

	var body PaymentRequiredResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode 402 body: %v", err)
	}
	if body.X402Version != gate.X402Version {
		t.Errorf("expected x402Version %d, got %d", gate.X402Version, body.X402Version)
	}
	if len(body.Accepts) != 1 {
		t.Errorf("expected 1 requirement in 402 body, got %d", len(body.Accepts))
	}
	if body.ErrorKind != string(gate.KindPaymentMissing) {
		t.Errorf("expected errorKind %s, got %s", gate.KindPaymentMissing, body.ErrorKind)
	}
	if body.Pricing == nil || body.Pricing.FinalPrice != "1.00" {
		t.Errorf("expected pricing 1.00, got %+v", body.Pricing)
	}
}

func TestMiddlewareValidPayment(t *testing.T) {
	server, cat, seen := gatedServer(t, &fakeFacilitator{})
	header := signedPaymentHeader(t, cat)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/analyze", nil)
	req.Header.Set("X-PAYMENT", header)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	receipt := resp.Header.Get("X-PAYMENT-RESPONSE")
	if receipt == "" {
		t.Fatal("expected settlement receipt header")
	}
	settlement, err := encoding.DecodeSettlement(receipt)
	if err != nil {
		t.Fatalf("failed to decode receipt: %v", err)
	}
	if !settlement.Success || settlement.Transaction != "0xdeadbeef" {
		t.Errorf("unexpected settlement: %+v", settlement)
	}

	if *seen == nil {
		t.Fatal("expected payment result in handler context")
	}
	if (*seen).Payer == "" {
		t.Error("expected payer on verification result")
	}
}

func TestMiddlewareReplayedPayment(t *testing.T) {
	server, cat, _ := gatedServer(t, &fakeFacilitator{})
	header := signedPaymentHeader(t, cat)

	for attempt, wantStatus := range []int{http.StatusOK, http.StatusPaymentRequired} {
		req, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/analyze", nil)
		req.Header.Set("X-PAYMENT", header)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d failed: %v", attempt, err)
		}
		if resp.StatusCode != wantStatus {
			t.Errorf("attempt %d: expected %d, got %d", attempt, wantStatus, resp.StatusCode)
		}
		if attempt == 1 {
			var body PaymentRequiredResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode 402 body: %v", err)
			}
			if body.ErrorKind != string(gate.KindReplayedNonce) {
				t.Errorf("expected errorKind %s, got %s", gate.KindReplayedNonce, body.ErrorKind)
			}
		}
		resp.Body.Close()
	}
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	server, _, _ := gatedServer(t, &fakeFacilitator{})

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/analyze", nil)
	req.Header.Set("X-PAYMENT", "not-base64!!!")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMiddlewareFacilitatorOutage(t *testing.T) {
	server, cat, _ := gatedServer(t, &fakeFacilitator{verifyErr: context.DeadlineExceeded})
	header := signedPaymentHeader(t, cat)

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/v1/analyze", nil)
	req.Header.Set("X-PAYMENT", header)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestMiddlewareOptionsBypass(t *testing.T) {
	server, _, _ := gatedServer(t, &fakeFacilitator{})

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/v1/analyze", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected preflight to bypass payment, got %d", resp.StatusCode)
	}
}
