// Package verify implements payment verification for the AgentMarket
// protocol. A proof is nothing but a transaction hash; validity is re-derived
// from the ledger's receipt on every call, never from the caller's say-so and
// never from a cache.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	market "github.com/agentmarket/market-go"
	"github.com/agentmarket/market-go/chain"
)

// Rejection reasons reported to callers. These strings are part of the
// protocol surface; buyers display them verbatim.
const (
	ReasonInvalidTransaction = "invalid or failed transaction"
	ReasonPaymentNotFound    = "payment not found in transaction logs"
)

// ReceiptFetcher retrieves transaction receipts from the ledger.
// *ethclient.Client and *chain.Client both satisfy it.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Result is the outcome of verifying one proof against one expected service.
type Result struct {
	// Valid reports whether a matching payment event was found in a
	// successful receipt.
	Valid bool

	// ServiceID is the service id from the matched event. Zero when invalid.
	ServiceID uint64

	// Payer is the paying account from the matched event.
	Payer common.Address

	// Amount is the paid amount in wei from the matched event.
	Amount *big.Int

	// Reason explains a definitive rejection. Empty when valid.
	Reason string
}

// Verifier checks payment proofs against ledger state.
type Verifier struct {
	// Receipts is the ledger receipt source.
	Receipts ReceiptFetcher
}

// Verify fetches the receipt for the proof and scans its logs for a
// ServiceCalled event matching expectedServiceID.
//
// The scan is best-effort and order-independent: entries that do not decode
// as ServiceCalled belong to unrelated events and are skipped silently.
//
// A definitive rejection (missing transaction, failed execution, no matching
// event) is returned as a Result with Valid=false and a Reason, and a nil
// error. A non-nil error means the receipt could not be fetched at all; that
// is a transport condition and the only case where retrying can change the
// outcome.
func (v *Verifier) Verify(ctx context.Context, proof common.Hash, expectedServiceID uint64) (Result, error) {
	receipt, err := v.Receipts.TransactionReceipt(ctx, proof)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return Result{Reason: ReasonInvalidTransaction}, nil
		}
		return Result{}, fmt.Errorf("%w: %v", market.ErrProofTransport, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return Result{Reason: ReasonInvalidTransaction}, nil
	}

	for _, entry := range receipt.Logs {
		ev, perr := chain.ParseServiceCalled(*entry)
		if perr != nil {
			continue
		}
		if ev.ServiceID == expectedServiceID {
			return Result{
				Valid:     true,
				ServiceID: ev.ServiceID,
				Payer:     ev.Payer,
				Amount:    ev.Amount,
			}, nil
		}
	}

	return Result{Reason: ReasonPaymentNotFound}, nil
}
