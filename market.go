// Package market defines the shared types of the AgentMarket payment-gated
// service protocol: the on-chain service record, the machine-readable
// "payment required" advertisement, the proof and fulfillment headers, and
// the error taxonomy used by both the buyer and the seller agent.
//
// The protocol is a simple handshake. A buyer pays for a service through the
// market contract, waits for the transaction to confirm, and then calls the
// seller's endpoint with the transaction hash in the X-Payment header. The
// seller independently re-derives payment validity from the transaction
// receipt before releasing the resource; it never trusts the caller's claim.
package market

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolVersion identifies the payment protocol revision advertised in
// 402 responses.
const ProtocolVersion = "0.7.3"

// HTTP header names used by the protocol.
const (
	// PaymentHeader carries the buyer's proof of payment: the hash of the
	// confirmed callService transaction, as an opaque string.
	PaymentHeader = "X-Payment"

	// FulfillmentHeader is set by the seller on successful delivery and
	// echoes the proof back so downstream consumers can audit the chain
	// linking payment to content without re-verifying.
	FulfillmentHeader = "X-Payment-Response"
)

// Service is a sellable unit as recorded by the market contract. It is owned
// and mutated exclusively by the ledger; agents only read it or request
// mutation through ledger-accepted transactions.
type Service struct {
	// ID is the ledger-assigned service identifier, starting at 1.
	ID uint64

	// Owner is the ledger account that registered the service and receives
	// its revenue.
	Owner common.Address

	// Name is the human-readable service name.
	Name string

	// Endpoint is the URL of the seller's gated resource endpoint.
	Endpoint string

	// PricePerCall is the required payment per invocation, in wei.
	PricePerCall *big.Int

	// TotalCalls counts completed paid invocations.
	TotalCalls uint64

	// Reputation is the ledger-maintained score.
	Reputation uint64

	// IsActive reports whether the service accepts new calls.
	IsActive bool
}

// ServiceStats is the revenue view returned by getServiceStats.
type ServiceStats struct {
	TotalCalls        uint64
	TotalRevenue      *big.Int
	PendingWithdrawal *big.Int
}

// PaymentOption is one entry of the "accepts" array in a 402 response. It
// carries everything a buyer agent needs to construct the paying transaction
// on its own.
type PaymentOption struct {
	// Type is the payment rail identifier. Only "chain-native" is issued.
	Type string `json:"type"`

	// Network is the human-readable network name (e.g. "arbitrum-sepolia").
	Network string `json:"network"`

	// ChainID is the EIP-155 chain identifier.
	ChainID int64 `json:"chainId"`

	// Amount is the required payment in wei, as a decimal string.
	Amount string `json:"amount"`

	// Recipient is the seller's ledger account.
	Recipient string `json:"recipient"`

	// TokenAddress is the token contract, or the zero address for the
	// chain-native asset.
	TokenAddress string `json:"tokenAddress"`

	// ContractAddress is the market contract the paying call must target.
	ContractAddress string `json:"contractAddress"`

	// Method is the contract method to invoke ("callService").
	Method string `json:"method"`

	// Params are the method arguments; for callService, the service id.
	Params []uint64 `json:"params"`
}

// PaymentRequired is the 402 response body. It is the protocol's
// advertisement step, not an error surface: a buyer agent must be able to
// construct the paying transaction from this body alone.
type PaymentRequired struct {
	// ProtocolVersion is the protocol revision.
	ProtocolVersion string `json:"protocolVersion"`

	// Accepts lists the payment options the seller will accept.
	Accepts []PaymentOption `json:"accepts"`

	// Message is a human-readable summary of what is required.
	Message string `json:"message"`

	// Error carries the rejection reason when a presented proof failed
	// verification. Empty on the initial advertisement.
	Error string `json:"error,omitempty"`
}

// Fulfillment is the value of the X-Payment-Response header: the seller's
// proof-of-fulfillment metadata linking the delivered resource back to the
// paying transaction.
type Fulfillment struct {
	Status string `json:"status"`
	TxHash string `json:"txHash"`
}

// FulfillmentOK is the Status value for a successful delivery.
const FulfillmentOK = "success"

// EtherToWei converts a decimal ether amount string to wei.
// Returns ErrInvalidAmount for malformed or negative amounts.
func EtherToWei(amount string) (*big.Int, error) {
	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	value.Mul(value, scale)

	if value.Denom().Cmp(big.NewInt(1)) != 0 {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// WeiToEther converts a wei amount to a decimal ether string with trailing
// zeros trimmed, so 10^16 wei renders as "0.01". A nil value renders as "0".
func WeiToEther(value *big.Int) string {
	if value == nil {
		return "0"
	}

	rat := new(big.Rat).SetInt(value)
	scale := new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	rat.Quo(rat, scale)

	s := strings.TrimRight(rat.FloatString(18), "0")
	return strings.TrimSuffix(s, ".")
}
