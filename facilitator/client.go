package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/retry"
)

// Client talks to an x402 facilitator over HTTP. Verify and settle calls are
// bounded by the configured timeouts and retried at most once on transient
// transport failure; an HTTP-level rejection is never retried.
type Client struct {
	// BaseURL is the facilitator endpoint (e.g., "https://facilitator.example.com").
	BaseURL string

	// HTTPClient is the underlying client. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Timeouts bounds verify and settle operations. Defaults to gate.DefaultTimeouts.
	Timeouts gate.TimeoutConfig

	// Authorization is a static Authorization header value, e.g. "Bearer key".
	Authorization string

	// AuthorizationProvider supplies dynamic Authorization header values.
	// Takes precedence over Authorization when set.
	AuthorizationProvider AuthorizationProvider
}

var _ Interface = (*Client)(nil)

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) timeouts() gate.TimeoutConfig {
	if c.Timeouts == (gate.TimeoutConfig{}) {
		return gate.DefaultTimeouts
	}
	return c.Timeouts
}

func (c *Client) authorize(req *http.Request) error {
	if c.AuthorizationProvider != nil {
		value, err := c.AuthorizationProvider()
		if err != nil {
			return fmt.Errorf("authorization provider: %w", err)
		}
		req.Header.Set("Authorization", value)
		return nil
	}
	if c.Authorization != "" {
		req.Header.Set("Authorization", c.Authorization)
	}
	return nil
}

// transportFailure marks errors that never reached the facilitator's handler
// and are therefore safe to retry once.
type transportFailure struct{ err error }

func (t *transportFailure) Error() string { return t.err.Error() }
func (t *transportFailure) Unwrap() error { return t.err }

func isTransportFailure(err error) bool {
	_, ok := err.(*transportFailure)
	return ok
}

// post sends a JSON request and decodes the JSON response, retrying once on
// transport failure.
func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = retry.WithRetry(ctx, retry.OnceConfig, isTransportFailure, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if err := c.authorize(req); err != nil {
			return struct{}{}, err
		}

		resp, err := c.httpClient().Do(req)
		if err != nil {
			return struct{}{}, &transportFailure{err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, &transportFailure{err: err}
		}
		if resp.StatusCode != http.StatusOK {
			return struct{}{}, fmt.Errorf("%w: %s returned %d: %s",
				gate.ErrFacilitatorUnavailable, path, resp.StatusCode, truncate(data, 256))
		}
		if err := json.Unmarshal(data, out); err != nil {
			return struct{}{}, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Verify implements Interface.
func (c *Client) Verify(ctx context.Context, payment gate.PaymentPayload, requirement gate.PaymentRequirement) (*VerifyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().VerifyTimeout)
	defer cancel()

	var out VerifyResponse
	if err := c.post(ctx, "/verify", Request{
		X402Version:         gate.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle implements Interface.
func (c *Client) Settle(ctx context.Context, payment gate.PaymentPayload, requirement gate.PaymentRequirement) (*gate.SettlementResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().SettleTimeout)
	defer cancel()

	var out gate.SettlementResponse
	if err := c.post(ctx, "/settle", Request{
		X402Version:         gate.X402Version,
		PaymentPayload:      payment,
		PaymentRequirements: requirement,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Supported implements Interface.
func (c *Client) Supported(ctx context.Context) (*SupportedResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().VerifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/supported", nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gate.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: /supported returned %d", gate.ErrFacilitatorUnavailable, resp.StatusCode)
	}

	var out SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode /supported response: %w", err)
	}
	return &out, nil
}

// Health implements Interface.
func (c *Client) Health(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts().VerifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", gate.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
