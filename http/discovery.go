package http

import (
	"log/slog"
	"net/http"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/catalog"
)

// NewDiscoveryHandler returns a handler that quotes the payment requirements
// for an endpoint without requiring a payment attempt. Query parameters:
// method, path, and optionally account (for subscription discounts). An
// endpoint with no configured price returns an empty accepts list, which
// clients read as "free".
func NewDiscoveryHandler(cat *catalog.Catalog, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Query().Get("method")
		path := r.URL.Query().Get("path")
		account := r.URL.Query().Get("account")

		if method == "" || path == "" {
			writeError(w, http.StatusBadRequest, gate.KindValidationError,
				"method and path query parameters are required")
			return
		}

		requirements, pricing, err := cat.RequirementsFor(r.Context(), method, path, account)
		if err != nil {
			logger.Error("failed to resolve requirements", "method", method, "path", path, "error", err)
			writeError(w, http.StatusInternalServerError, "", "failed to resolve requirements")
			return
		}
		if requirements == nil {
			requirements = []gate.PaymentRequirement{}
		}

		writeJSON(w, http.StatusOK, gate.PaymentRequirementsResponse{
			X402Version: gate.X402Version,
			Accepts:     requirements,
			Pricing:     pricing,
		})
	})
}
