// Package chi provides Chi-compatible middleware for payment gating. Chi
// middleware uses the stdlib http.Handler signature, so this is a direct
// re-export kept for symmetry with the gin adapter.
package chi

import (
	"net/http"

	gatehttp "github.com/mark3labs/x402-gate/http"
)

// NewMiddleware creates payment-gating middleware for a Chi router.
//
// Example usage:
//
//	r := chi.NewRouter()
//	r.Use(chix402.NewMiddleware(&gatehttp.Config{Verifier: v}))
//	r.Post("/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
//	    if payment := gatehttp.PaymentFromContext(r.Context()); payment != nil {
//	        w.Write([]byte("paid by " + payment.Payer))
//	    }
//	})
func NewMiddleware(config *gatehttp.Config) func(http.Handler) http.Handler {
	return gatehttp.NewMiddleware(config)
}
