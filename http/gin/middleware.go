// Package gin provides Gin-compatible middleware for payment gating. It is a
// thin adapter that translates gin.Context to the verifier pipeline; all
// verification and settlement logic lives in the verifier package.
package gin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	gate "github.com/mark3labs/x402-gate"
	"github.com/mark3labs/x402-gate/encoding"
	gatehttp "github.com/mark3labs/x402-gate/http"
)

// PaymentContextKey is the gin context key under which the middleware stores
// the *verifier.Result.
const PaymentContextKey = "x402_payment"

// NewMiddleware creates payment-gating middleware for Gin.
//
// Example usage:
//
//	r := gin.Default()
//	r.Use(ginx402.NewMiddleware(&gatehttp.Config{Verifier: v}))
//	r.POST("/v1/analyze", func(c *gin.Context) {
//	    if payment, ok := c.Get(ginx402.PaymentContextKey); ok {
//	        result := payment.(*verifier.Result)
//	        c.JSON(200, gin.H{"payer": result.Payer})
//	    }
//	})
func NewMiddleware(config *gatehttp.Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	accountID := config.AccountID
	if accountID == nil {
		accountID = func(r *http.Request) string { return r.Header.Get("X-Account-Id") }
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		var payment *gate.PaymentPayload
		if headerValue := c.GetHeader("X-PAYMENT"); headerValue != "" {
			decoded, err := encoding.DecodePayment(headerValue)
			if err != nil {
				logger.Warn("invalid payment header", "path", c.Request.URL.Path, "error", err)
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":     "invalid payment header",
					"errorKind": string(gate.KindValidationError),
				})
				return
			}
			payment = &decoded
		}

		result, err := config.Verifier.Verify(c.Request.Context(),
			c.Request.Method, c.Request.URL.Path, payment, accountID(c.Request))
		if err != nil {
			logger.Error("payment verification failed", "path", c.Request.URL.Path, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "payment verification failed",
			})
			return
		}

		if !result.Valid {
			status := gatehttp.StatusForKind(result.ErrorKind)
			logger.Info("payment rejected",
				"path", c.Request.URL.Path, "kind", result.ErrorKind, "status", status)
			if status == http.StatusPaymentRequired {
				message := result.Message
				if message == "" {
					message = "Payment required for this resource"
				}
				c.AbortWithStatusJSON(status, gatehttp.PaymentRequiredResponse{
					PaymentRequirementsResponse: gate.PaymentRequirementsResponse{
						X402Version: gate.X402Version,
						Error:       message,
						Accepts:     result.Requirements,
						Pricing:     result.Pricing,
					},
					ErrorKind: string(result.ErrorKind),
				})
				return
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":     result.Message,
				"errorKind": string(result.ErrorKind),
			})
			return
		}

		if result.ResponseHeader != "" {
			c.Header("X-PAYMENT-RESPONSE", result.ResponseHeader)
		}
		if result.ErrorKind != gate.KindNoPaymentRequired {
			c.Set(PaymentContextKey, result)
		}
		c.Next()
	}
}
