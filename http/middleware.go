// Package http provides the HTTP surface for payment gating: middleware that
// guards handlers behind verified payments, the requirements discovery
// endpoint, and the credits API.
package http

import (
	"context"
	"log/slog"
	"net/http"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/verifier"
)

// Config holds the configuration for the payment middleware.
type Config struct {
	// Verifier runs the full verification pipeline for each request.
	Verifier *verifier.Verifier

	// AccountID extracts the caller's account identifier for discount
	// resolution. Defaults to reading the X-Account-Id header.
	AccountID func(r *http.Request) string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key under which the middleware stores the
// *verifier.Result for handler access.
const PaymentContextKey = contextKey("x402_payment")

// PaymentFromContext returns the verification result stored by the
// middleware, or nil when the endpoint was free.
func PaymentFromContext(ctx context.Context) *verifier.Result {
	result, _ := ctx.Value(PaymentContextKey).(*verifier.Result)
	return result
}

func defaultAccountID(r *http.Request) string {
	return r.Header.Get("X-Account-Id")
}

// NewMiddleware creates payment-gating middleware. Requests to priced
// endpoints must carry a valid X-PAYMENT header; the payment is verified and
// settled before the wrapped handler runs, and the settlement receipt is
// exposed via the X-PAYMENT-RESPONSE header.
func NewMiddleware(config *Config) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	accountID := config.AccountID
	if accountID == nil {
		accountID = defaultAccountID
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Bypass CORS preflight.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			payment, err := parsePaymentHeader(r)
			if err != nil {
				logger.Warn("invalid payment header", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusBadRequest, gate.KindValidationError, "invalid payment header")
				return
			}

			result, err := config.Verifier.Verify(r.Context(), r.Method, r.URL.Path, payment, accountID(r))
			if err != nil {
				logger.Error("payment verification failed", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "", "payment verification failed")
				return
			}

			if !result.Valid {
				status := StatusForKind(result.ErrorKind)
				logger.Info("payment rejected",
					"path", r.URL.Path, "kind", result.ErrorKind, "status", status)
				if status == http.StatusPaymentRequired {
					sendPaymentRequired(w, result)
					return
				}
				writeError(w, status, result.ErrorKind, result.Message)
				return
			}

			if result.ResponseHeader != "" {
				w.Header().Set("X-PAYMENT-RESPONSE", result.ResponseHeader)
			}
			if result.ErrorKind != gate.KindNoPaymentRequired {
				ctx := context.WithValue(r.Context(), PaymentContextKey, result)
				r = r.WithContext(ctx)
			}

			next.ServeHTTP(w, r)
		})
	}
}
