package market

import (
	"fmt"
	"time"
)

// TimeoutConfig holds timeout configuration for protocol operations.
type TimeoutConfig struct {
	// DialAttempt bounds each attempt to reach a single ledger endpoint
	// while walking the fallback list.
	DialAttempt time.Duration

	// Call bounds a single ledger read (receipt fetch, service lookup).
	Call time.Duration

	// Finality is the maximum time to wait for a submitted transaction to
	// be mined.
	Finality time.Duration

	// SellerRequest bounds the buyer's HTTP call to the seller endpoint.
	SellerRequest time.Duration
}

// DefaultTimeouts provides sensible defaults for protocol operations.
var DefaultTimeouts = TimeoutConfig{
	DialAttempt:   10 * time.Second,
	Call:          10 * time.Second,
	Finality:      120 * time.Second,
	SellerRequest: 60 * time.Second,
}

// WithDialAttempt returns a new TimeoutConfig with updated dial timeout.
func (tc TimeoutConfig) WithDialAttempt(d time.Duration) TimeoutConfig {
	tc.DialAttempt = d
	return tc
}

// WithCall returns a new TimeoutConfig with updated call timeout.
func (tc TimeoutConfig) WithCall(d time.Duration) TimeoutConfig {
	tc.Call = d
	return tc
}

// WithFinality returns a new TimeoutConfig with updated finality timeout.
func (tc TimeoutConfig) WithFinality(d time.Duration) TimeoutConfig {
	tc.Finality = d
	return tc
}

// WithSellerRequest returns a new TimeoutConfig with updated seller timeout.
func (tc TimeoutConfig) WithSellerRequest(d time.Duration) TimeoutConfig {
	tc.SellerRequest = d
	return tc
}

// Validate ensures timeout values are reasonable.
func (tc TimeoutConfig) Validate() error {
	if tc.DialAttempt <= 0 {
		return fmt.Errorf("dial attempt timeout must be positive, got %v", tc.DialAttempt)
	}
	if tc.Call <= 0 {
		return fmt.Errorf("call timeout must be positive, got %v", tc.Call)
	}
	if tc.Finality <= 0 {
		return fmt.Errorf("finality timeout must be positive, got %v", tc.Finality)
	}
	if tc.SellerRequest <= 0 {
		return fmt.Errorf("seller request timeout must be positive, got %v", tc.SellerRequest)
	}
	if tc.Finality < tc.Call {
		return fmt.Errorf("finality timeout (%v) should be >= call timeout (%v)",
			tc.Finality, tc.Call)
	}
	return nil
}
