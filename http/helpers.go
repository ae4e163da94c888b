package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/encoding"
	"github.com/mark3labs/x402-gate/verifier"
)

// PaymentRequiredResponse is the body of a 402 response: the standard
// requirements document plus the rejection kind so clients can distinguish
// "no payment attached" from e.g. a replayed nonce without parsing prose.
type PaymentRequiredResponse struct {
	gate.PaymentRequirementsResponse
	ErrorKind string `json:"errorKind,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"errorKind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind gate.ErrorKind, message string) {
	writeJSON(w, status, errorResponse{Error: message, ErrorKind: string(kind)})
}

// parsePaymentHeader decodes the X-PAYMENT header. A missing header returns
// (nil, nil): absence is a protocol state, not a parse failure.
func parsePaymentHeader(r *http.Request) (*gate.PaymentPayload, error) {
	headerValue := r.Header.Get("X-PAYMENT")
	if headerValue == "" {
		return nil, nil
	}

	payment, err := encoding.DecodePayment(headerValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gate.ErrMalformedHeader, err)
	}
	return &payment, nil
}

// sendPaymentRequired writes the 402 response carrying the payment options
// resolved for the request. This doubles as the protocol's discovery
// mechanism for clients that probe without a payment attached.
func sendPaymentRequired(w http.ResponseWriter, result *verifier.Result) {
	message := result.Message
	if message == "" {
		message = "Payment required for this resource"
	}
	writeJSON(w, http.StatusPaymentRequired, PaymentRequiredResponse{
		PaymentRequirementsResponse: gate.PaymentRequirementsResponse{
			X402Version: gate.X402Version,
			Error:       message,
			Accepts:     result.Requirements,
			Pricing:     result.Pricing,
		},
		ErrorKind: string(result.ErrorKind),
	})
}

// StatusForKind maps a rejection kind to an HTTP status. Expected payment
// rejections are 402, malformed input is 400, and only facilitator outages
// surface as a server-side failure.
func StatusForKind(kind gate.ErrorKind) int {
	switch kind {
	case gate.KindValidationError:
		return http.StatusBadRequest
	case gate.KindFacilitatorError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusPaymentRequired
	}
}
