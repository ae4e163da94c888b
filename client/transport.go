// Package client provides an http.RoundTripper that transparently pays for
// gated endpoints: a 402 response is answered by signing a matching payment
// and retrying the request with the X-PAYMENT header attached.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/encoding"
)

// Transport is a RoundTripper that handles 402 payment flows around a base
// transport.
type Transport struct {
	// Base is the underlying RoundTripper. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Signers are the available payment signers.
	Signers []gate.Signer

	// Selector chooses the signer and requirement. Defaults to
	// gate.NewDefaultPaymentSelector.
	Selector gate.PaymentSelector

	// Lifecycle callbacks for payment telemetry. All optional.
	OnPaymentAttempt gate.PaymentCallback
	OnPaymentSuccess gate.PaymentCallback
	OnPaymentFailure gate.PaymentCallback
}

// RoundTrip makes the request and, on a 402 response, signs a payment
// satisfying one of the offered requirements and retries once.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	selector := t.Selector
	if selector == nil {
		selector = gate.NewDefaultPaymentSelector()
	}

	// Buffer the body so the request can be replayed with payment attached.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
	}

	resp, err := base.RoundTrip(cloneRequest(req, bodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	requirements, err := parseRequirements(resp)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gate.ErrInvalidRequirements, err)
	}

	payment, err := selector.SelectAndSign(requirements, t.Signers)
	if err != nil {
		return nil, err
	}

	var selected *gate.PaymentRequirement
	for i := range requirements {
		if requirements[i].Network == payment.Network && requirements[i].Scheme == payment.Scheme {
			selected = &requirements[i]
			break
		}
	}

	startTime := time.Now()
	if t.OnPaymentAttempt != nil && selected != nil {
		t.OnPaymentAttempt(gate.PaymentEvent{
			Type:      gate.PaymentEventAttempt,
			Timestamp: startTime,
			URL:       req.URL.String(),
			Network:   payment.Network,
			Scheme:    payment.Scheme,
			Amount:    selected.MaxAmountRequired,
			Asset:     selected.Asset,
			Recipient: selected.PayTo,
		})
	}

	paymentHeader, err := encoding.EncodePayment(*payment)
	if err != nil {
		t.emitFailure(req, err, time.Since(startTime))
		return nil, fmt.Errorf("%w: %v", gate.ErrSigningFailed, err)
	}

	retry := cloneRequest(req, bodyBytes)
	retry.Header.Set("X-PAYMENT", paymentHeader)

	paidResp, err := base.RoundTrip(retry)
	duration := time.Since(startTime)
	if err != nil {
		t.emitFailure(req, err, duration)
		return nil, err
	}

	if t.OnPaymentSuccess != nil {
		if settlement, err := encoding.DecodeSettlement(paidResp.Header.Get("X-PAYMENT-RESPONSE")); err == nil && settlement.Success {
			event := gate.PaymentEvent{
				Type:        gate.PaymentEventSuccess,
				Timestamp:   time.Now(),
				URL:         req.URL.String(),
				Transaction: settlement.Transaction,
				Payer:       settlement.Payer,
				Duration:    duration,
			}
			if selected != nil {
				event.Network = selected.Network
				event.Scheme = selected.Scheme
				event.Amount = selected.MaxAmountRequired
				event.Asset = selected.Asset
				event.Recipient = selected.PayTo
			}
			t.OnPaymentSuccess(event)
		}
	}

	return paidResp, nil
}

func (t *Transport) emitFailure(req *http.Request, err error, duration time.Duration) {
	if t.OnPaymentFailure == nil {
		return
	}
	t.OnPaymentFailure(gate.PaymentEvent{
		Type:      gate.PaymentEventFailure,
		Timestamp: time.Now(),
		URL:       req.URL.String(),
		Error:     err,
		Duration:  duration,
	})
}

func cloneRequest(req *http.Request, body []byte) *http.Request {
	clone := req.Clone(req.Context())
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.ContentLength = int64(len(body))
	}
	return clone
}

func parseRequirements(resp *http.Response) ([]gate.PaymentRequirement, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read 402 response body: %w", err)
	}

	var doc gate.PaymentRequirementsResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse requirements document: %w", err)
	}
	if len(doc.Accepts) == 0 {
		return nil, fmt.Errorf("no payment requirements offered")
	}
	return doc.Accepts, nil
}
