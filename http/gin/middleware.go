// Package gin provides a Gin-compatible adapter for the payment gate. It is
// a thin translation layer; all verification logic lives in the http and
// verify packages.
package gin

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	market "github.com/agentmarket/market-go"
	markethttp "github.com/agentmarket/market-go/http"
)

// GateConfig is an alias for markethttp.GateConfig for convenience.
type GateConfig = markethttp.GateConfig

// PaymentContextKey is the gin context key for storing verified payment
// information.
const PaymentContextKey = "market_payment"

// NewPaymentGate creates a payment-gate middleware for Gin.
//
// The middleware:
//   - Returns the 402 advertisement when the X-Payment header is missing
//   - Verifies the presented proof against current ledger state
//   - Returns 503 when the ledger cannot be consulted (retryable)
//   - Returns 402 with the rejection reason when the proof is invalid
//   - Stores the verified payment via c.Set and calls c.Next() on success
func NewPaymentGate(config GateConfig) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		raw := c.GetHeader(market.PaymentHeader)
		if raw == "" {
			logger.Info("no payment header provided", "path", c.Request.URL.Path, "service_id", config.ServiceID)
			sendPaymentRequired(c, config, "")
			return
		}

		logger.Info("verifying payment", "proof", raw, "service_id", config.ServiceID)
		result, err := config.Verifier.Verify(c.Request.Context(), common.HexToHash(raw), config.ServiceID)
		if err != nil {
			logger.Error("payment verification unavailable", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "payment verification unavailable, retry later",
			})
			return
		}

		if !result.Valid {
			logger.Warn("payment rejected", "proof", raw, "reason", result.Reason)
			sendPaymentRequired(c, config, result.Reason)
			return
		}

		logger.Info("payment verified", "payer", result.Payer.Hex(), "service_id", result.ServiceID)
		c.Set(PaymentContextKey, &markethttp.Payment{Proof: raw, Result: result})
		c.Next()
	}
}

// sendPaymentRequired aborts the chain with the 402 advertisement body.
func sendPaymentRequired(c *gin.Context, config GateConfig, reason string) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, market.PaymentRequired{
		ProtocolVersion: market.ProtocolVersion,
		Accepts:         config.Accepts,
		Message:         config.Message,
		Error:           reason,
	})
}

// GetPaymentFromContext extracts the verified payment from the Gin context.
// Returns nil if no payment was verified.
func GetPaymentFromContext(c *gin.Context) *markethttp.Payment {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	payment, ok := value.(*markethttp.Payment)
	if !ok {
		return nil
	}
	return payment
}
