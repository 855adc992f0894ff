// Package helpers provides internal HTTP utilities for the market protocol
// headers and the 402 advertisement body.
package helpers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/agentmarket/market-go"
)

// ProofFromRequest extracts the payment proof from the X-Payment header.
// The header value is an opaque transaction identifier; it is only parsed
// into a hash, never trusted. Returns false when the header is absent.
func ProofFromRequest(r *http.Request) (common.Hash, string, bool) {
	raw := r.Header.Get(market.PaymentHeader)
	if raw == "" {
		return common.Hash{}, "", false
	}
	return common.HexToHash(raw), raw, true
}

// SendPaymentRequired writes the 402 advertisement. reason is empty on the
// initial advertisement and carries the rejection cause after a failed
// verification.
func SendPaymentRequired(w http.ResponseWriter, accepts []market.PaymentOption, message, reason string) error {
	response := market.PaymentRequired{
		ProtocolVersion: market.ProtocolVersion,
		Accepts:         accepts,
		Message:         message,
		Error:           reason,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		return fmt.Errorf("encoding PaymentRequired response: %w", err)
	}
	return nil
}

// SetFulfillmentHeader sets the X-Payment-Response header echoing the proof
// of the payment that funded this response.
func SetFulfillmentHeader(h http.Header, fulfillment market.Fulfillment) error {
	encoded, err := json.Marshal(fulfillment)
	if err != nil {
		return fmt.Errorf("encode fulfillment: %w", err)
	}
	h.Set(market.FulfillmentHeader, string(encoded))
	return nil
}

// ParseFulfillment decodes an X-Payment-Response header value.
// Returns nil if the value is empty or cannot be parsed.
func ParseFulfillment(headerValue string) *market.Fulfillment {
	if headerValue == "" {
		return nil
	}
	var fulfillment market.Fulfillment
	if err := json.Unmarshal([]byte(headerValue), &fulfillment); err != nil {
		return nil
	}
	return &fulfillment
}
