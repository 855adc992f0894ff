// Package http implements the payment gate for net/http: a request-admission
// middleware that withholds a resource until the presented proof verifies
// against ledger state.
//
// The gate's state machine per request is small and strict. A request with
// no proof header receives the machine-readable 402 advertisement and never
// reaches the resource handler. A request with a proof is verified fresh
// against the ledger; only a verified request proceeds, with the payment
// facts attached to its context. Rejection has no side effects.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/agentmarket/market-go"
	"github.com/agentmarket/market-go/http/internal/helpers"
	"github.com/agentmarket/market-go/verify"
)

// PaymentVerifier re-derives payment validity from chain state.
// *verify.Verifier satisfies it.
type PaymentVerifier interface {
	Verify(ctx context.Context, proof common.Hash, expectedServiceID uint64) (verify.Result, error)
}

// GateConfig configures a payment gate for one service endpoint.
type GateConfig struct {
	// Verifier checks presented proofs against the ledger.
	Verifier PaymentVerifier

	// ServiceID is the service this endpoint serves; only payments for
	// this id admit a request.
	ServiceID uint64

	// Accepts is the advertisement returned on 402 responses. It must be
	// sufficient for a buyer to construct the paying transaction.
	Accepts []market.PaymentOption

	// Message is the human-readable summary in the 402 body.
	Message string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Payment is the verified payment attached to an admitted request's context.
type Payment struct {
	// Proof is the transaction hash presented by the caller, for echoing
	// in the fulfillment header.
	Proof string

	// Result holds the facts extracted from the ledger.
	Result verify.Result
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for storing verified payment
// information.
const PaymentContextKey = contextKey("market_payment")

// NewPaymentGate returns a middleware that wraps a resource handler with
// payment gating.
func NewPaymentGate(config GateConfig) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			proof, raw, ok := helpers.ProofFromRequest(r)
			if !ok {
				// No payment provided - advertise the requirements.
				logger.Info("no payment header provided", "path", r.URL.Path, "service_id", config.ServiceID)
				if err := helpers.SendPaymentRequired(w, config.Accepts, config.Message, ""); err != nil {
					logger.Error("failed to send payment required response", "error", err)
				}
				return
			}

			logger.Info("verifying payment", "proof", raw, "service_id", config.ServiceID)
			result, err := config.Verifier.Verify(r.Context(), proof, config.ServiceID)
			if err != nil {
				// Transport failure: the ledger could not be consulted.
				// Distinct from a definitive rejection so callers may retry.
				logger.Error("payment verification unavailable", "error", err)
				http.Error(w, "payment verification unavailable, retry later", http.StatusServiceUnavailable)
				return
			}

			if !result.Valid {
				logger.Warn("payment rejected", "proof", raw, "reason", result.Reason)
				if err := helpers.SendPaymentRequired(w, config.Accepts, config.Message, result.Reason); err != nil {
					logger.Error("failed to send payment required response", "error", err)
				}
				return
			}

			logger.Info("payment verified", "payer", result.Payer.Hex(), "service_id", result.ServiceID)

			ctx := context.WithValue(r.Context(), PaymentContextKey, &Payment{Proof: raw, Result: result})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPaymentFromContext extracts the verified payment from a request context.
// Returns nil if the request was not admitted through a payment gate.
func GetPaymentFromContext(ctx context.Context) *Payment {
	value := ctx.Value(PaymentContextKey)
	if value == nil {
		return nil
	}
	payment, ok := value.(*Payment)
	if !ok {
		return nil
	}
	return payment
}

// SetFulfillment sets the fulfillment header on a response, echoing the
// proof so the caller's caller can audit payment against content delivery.
func SetFulfillment(h http.Header, txHash string) error {
	return helpers.SetFulfillmentHeader(h, market.Fulfillment{
		Status: market.FulfillmentOK,
		TxHash: txHash,
	})
}

// GetFulfillment extracts fulfillment information from an HTTP response.
// Returns nil if no fulfillment header is present or if parsing fails.
func GetFulfillment(resp *http.Response) *market.Fulfillment {
	return helpers.ParseFulfillment(resp.Header.Get(market.FulfillmentHeader))
}
