// Package buyer implements the buyer-side agent: resolving a purchase intent
// to a registered service, executing the paying transaction, and calling the
// seller with the confirmed proof.
package buyer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	market "github.com/agentmarket/market-go"
	markethttp "github.com/agentmarket/market-go/http"
)

// State names the stages of one purchase. Each transition is triggered by
// the completion of exactly one suspending operation, which keeps the
// partial-failure states first-class: a Failed purchase always knows which
// stage it failed in.
type State string

const (
	StateIdle              State = "idle"
	StateSubmittingPayment State = "submitting_payment"
	StateAwaitingFinality  State = "awaiting_finality"
	StateCallingSeller     State = "calling_seller"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Ledger is the slice of the chain client the orchestrator needs.
// *chain.Client satisfies it.
type Ledger interface {
	GetService(ctx context.Context, id uint64) (market.Service, error)
	SubmitServiceCall(ctx context.Context, id uint64, price *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	RevertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) string
	Address() common.Address
}

// SellerResult is the seller's resource response body.
type SellerResult struct {
	Success   bool   `json:"success"`
	Prompt    string `json:"prompt,omitempty"`
	Category  string `json:"category,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Message   string `json:"message,omitempty"`
	PaymentTx string `json:"payment_tx,omitempty"`
}

// Purchase is the record of one purchase intent as it moves through the
// state machine.
type Purchase struct {
	ServiceID uint64
	Service   market.Service
	State     State

	// TxHash is set once the paying transaction is submitted. After a
	// delivery failure it doubles as the proof for a retried seller call.
	TxHash common.Hash

	// Result is the seller's response, set in StateDone.
	Result *SellerResult

	// Fulfillment is the seller's echoed proof-of-fulfillment header.
	Fulfillment *market.Fulfillment

	// Err is the terminal error, set in StateFailed.
	Err error
}

// Paid reports whether funds were spent on-chain for this purchase,
// regardless of whether delivery succeeded.
func (p *Purchase) Paid() bool {
	return p.TxHash != (common.Hash{}) &&
		(p.State == StateDone || p.State == StateCallingSeller ||
			market.CodeOf(p.Err) == market.ErrCodeDeliveryFailed)
}

// Orchestrator drives purchases through the payment-then-delivery handshake.
type Orchestrator struct {
	Ledger Ledger

	// HTTPClient calls seller endpoints. Defaults to a client with the
	// seller-request timeout.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Purchase executes one purchase intent: resolve the service, submit the
// paying transaction at the price observed now, wait for finality, then call
// the seller with the transaction hash as proof.
//
// The returned Purchase always reflects the terminal state. Errors
// distinguish "nothing happened" (unknown service, reverted payment) from
// "payment happened but delivery did not" (ErrCodeDeliveryFailed): in the
// latter case funds were spent and the right recovery is RetryDelivery with
// the same proof, not a new payment.
func (o *Orchestrator) Purchase(ctx context.Context, serviceID uint64, prompt string) *Purchase {
	logger := o.logger()
	p := &Purchase{ServiceID: serviceID, State: StateIdle}

	svc, err := o.Ledger.GetService(ctx, serviceID)
	if err != nil {
		p.State = StateFailed
		// A registry miss and an unreachable registry are different
		// failures: only the former is definitive.
		if errors.Is(err, market.ErrLedgerUnavailable) {
			p.Err = market.NewMarketError(market.ErrCodeLedgerUnavailable,
				fmt.Sprintf("service %d lookup unavailable", serviceID), err)
		} else {
			p.Err = market.NewMarketError(market.ErrCodeUnknownService,
				fmt.Sprintf("service %d not available", serviceID), market.ErrUnknownService)
		}
		return p
	}
	if !svc.IsActive {
		p.State = StateFailed
		p.Err = market.NewMarketError(market.ErrCodeUnknownService,
			fmt.Sprintf("service %d is not active", serviceID), market.ErrUnknownService)
		return p
	}
	p.Service = svc

	// Price is pinned to the value observed now. If it goes stale before
	// the transaction lands, the ledger rejects the call; it never silently
	// succeeds at the wrong price.
	price := svc.PricePerCall

	p.State = StateSubmittingPayment
	logger.Info("submitting payment", "service_id", serviceID, "price_wei", price)
	tx, err := o.Ledger.SubmitServiceCall(ctx, serviceID, price)
	if err != nil {
		p.State = StateFailed
		if errors.Is(err, market.ErrLedgerUnavailable) {
			p.Err = market.NewMarketError(market.ErrCodeLedgerUnavailable,
				"payment submission unavailable", err)
		} else {
			p.Err = market.NewMarketError(market.ErrCodeTransactionReverted,
				"payment submission rejected", err)
		}
		return p
	}
	p.TxHash = tx.Hash()

	p.State = StateAwaitingFinality
	logger.Info("awaiting finality", "tx", p.TxHash.Hex())
	receipt, err := o.Ledger.WaitMined(ctx, tx)
	if err != nil {
		p.State = StateFailed
		p.Err = market.NewMarketError(market.ErrCodeLedgerUnavailable,
			"payment confirmation unavailable", err).WithDetails("tx", p.TxHash.Hex())
		return p
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		reason := o.Ledger.RevertReason(ctx, tx, receipt)
		p.State = StateFailed
		p.Err = market.NewMarketError(market.ErrCodeTransactionReverted,
			"transaction reverted: "+reason, market.ErrTransactionReverted).
			WithDetails("tx", p.TxHash.Hex())
		logger.Warn("payment reverted", "tx", p.TxHash.Hex(), "reason", reason)
		return p
	}
	logger.Info("payment confirmed", "tx", p.TxHash.Hex())

	o.deliver(ctx, p, prompt)
	return p
}

// RetryDelivery re-runs the seller call for a purchase whose payment
// confirmed but whose delivery failed. The same proof is presented; the
// verifier is idempotent over a valid proof, so no new payment is needed.
func (o *Orchestrator) RetryDelivery(ctx context.Context, p *Purchase, prompt string) error {
	if p.TxHash == (common.Hash{}) {
		return fmt.Errorf("buyer: purchase has no confirmed payment to retry")
	}
	o.deliver(ctx, p, prompt)
	return p.Err
}

// deliver runs the CallingSeller stage against p.Service.Endpoint.
func (o *Orchestrator) deliver(ctx context.Context, p *Purchase, prompt string) {
	logger := o.logger()

	p.State = StateCallingSeller
	p.Err = nil
	logger.Info("calling seller", "endpoint", p.Service.Endpoint, "proof", p.TxHash.Hex())

	result, fulfillment, err := o.callSeller(ctx, p.Service.Endpoint, p.TxHash, p.ServiceID, prompt)
	if err != nil {
		p.State = StateFailed
		p.Err = market.NewMarketError(market.ErrCodeDeliveryFailed,
			"delivery failed after payment", err).
			WithDetails("tx", p.TxHash.Hex()).
			WithDetails("endpoint", p.Service.Endpoint)
		logger.Error("delivery failed after payment", "tx", p.TxHash.Hex(), "error", err)
		return
	}

	p.Result = result
	p.Fulfillment = fulfillment
	p.State = StateDone
	logger.Info("service delivered", "tx", p.TxHash.Hex())
}

// callSeller issues the gated resource request with the proof header.
func (o *Orchestrator) callSeller(ctx context.Context, endpoint string, proof common.Hash, serviceID uint64, prompt string) (*SellerResult, *market.Fulfillment, error) {
	body, err := json.Marshal(map[string]interface{}{
		"prompt":    prompt,
		"caller":    o.Ledger.Address().Hex(),
		"serviceId": serviceID,
	})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(market.PaymentHeader, proof.Hex())

	resp, err := o.httpClient().Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", market.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired {
		var rejection market.PaymentRequired
		if derr := json.NewDecoder(resp.Body).Decode(&rejection); derr == nil && rejection.Error != "" {
			return nil, nil, fmt.Errorf("seller rejected proof: %s", rejection.Error)
		}
		return nil, nil, fmt.Errorf("seller rejected proof")
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, nil, fmt.Errorf("seller returned status %d: %s", resp.StatusCode, snippet)
	}

	var result SellerResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, nil, fmt.Errorf("decode seller response: %w", err)
	}

	return &result, markethttp.GetFulfillment(resp), nil
}

func (o *Orchestrator) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: market.DefaultTimeouts.SellerRequest}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
