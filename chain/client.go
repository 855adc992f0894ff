// Package chain implements the ledger side of the AgentMarket protocol: an
// Ethereum JSON-RPC client bound to the market contract, with ordered
// endpoint fallback, typed wrappers for the contract's call surface, and
// decoders for its emitted events.
//
// The ledger is the single source of truth. Agents hold no authoritative
// copy of the service registry or the event log, and every read here goes to
// the node; nothing is cached across requests.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	market "github.com/agentmarket/market-go"
)

// Gas limits pinned for the market contract's writes.
const (
	callServiceGasLimit = 500_000
	registerGasLimit    = 500_000
	withdrawGasLimit    = 200_000
)

// Config describes how to reach the ledger.
type Config struct {
	// Endpoints is the ordered list of candidate RPC URLs, tried in
	// sequence with a bounded per-attempt timeout. First reachable wins.
	Endpoints []string

	// Contract is the market contract address.
	Contract common.Address

	// PrivateKey is the agent's signing key, hex encoded with or without a
	// 0x prefix.
	PrivateKey string

	// ChainID pins the expected network.
	ChainID int64

	// Network is the human-readable network name advertised in 402 bodies.
	Network string

	// Timeouts configures operation deadlines. Zero value means
	// market.DefaultTimeouts.
	Timeouts market.TimeoutConfig

	// Logger receives connection progress. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a ledger client bound to one market contract and one signing
// account. It is safe for concurrent use.
type Client struct {
	eth      *ethclient.Client
	endpoint string
	contract common.Address
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	network  string
	timeouts market.TimeoutConfig
	log      *slog.Logger
}

// Dial walks cfg.Endpoints in order and returns a client on the first
// endpoint that answers a block-number probe within the attempt timeout.
// Returns market.ErrLedgerUnavailable when every endpoint fails.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("chain: no endpoints configured: %w", market.ErrLedgerUnavailable)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, market.ErrInvalidKey
	}

	timeouts := cfg.Timeouts
	if timeouts == (market.TimeoutConfig{}) {
		timeouts = market.DefaultTimeouts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for i, endpoint := range cfg.Endpoints {
		logger.Info("trying ledger endpoint", "attempt", i+1, "total", len(cfg.Endpoints))

		attemptCtx, cancel := context.WithTimeout(ctx, timeouts.DialAttempt)
		eth, err := ethclient.DialContext(attemptCtx, endpoint)
		if err == nil {
			// A dial alone proves nothing for HTTP transports; probe the
			// endpoint before committing to it.
			if _, err = eth.BlockNumber(attemptCtx); err != nil {
				eth.Close()
			}
		}
		cancel()

		if err != nil {
			logger.Warn("ledger endpoint unreachable", "attempt", i+1, "error", err)
			lastErr = err
			continue
		}

		logger.Info("ledger connected", "endpoint_index", i)
		return &Client{
			eth:      eth,
			endpoint: endpoint,
			contract: cfg.Contract,
			key:      key,
			address:  crypto.PubkeyToAddress(key.PublicKey),
			chainID:  big.NewInt(cfg.ChainID),
			network:  cfg.Network,
			timeouts: timeouts,
			log:      logger,
		}, nil
	}

	return nil, fmt.Errorf("chain: all %d endpoints failed (last: %v): %w",
		len(cfg.Endpoints), lastErr, market.ErrLedgerUnavailable)
}

// Address returns the client's signing account.
func (c *Client) Address() common.Address { return c.address }

// ContractAddress returns the bound market contract.
func (c *Client) ContractAddress() common.Address { return c.contract }

// ChainID returns the pinned chain id.
func (c *Client) ChainID() int64 { return c.chainID.Int64() }

// Network returns the human-readable network name.
func (c *Client) Network() string { return c.network }

// Balance returns the signing account's balance in wei.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Call)
	defer cancel()
	return c.eth.BalanceAt(ctx, c.address, nil)
}

// TransactionReceipt fetches the receipt for a transaction hash. It
// satisfies the verify.ReceiptFetcher interface and always queries current
// ledger state; results are never cached.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Call)
	defer cancel()
	return c.eth.TransactionReceipt(ctx, txHash)
}

// isRevert reports whether the node evaluated the call and rejected it, as
// opposed to the call never reaching the node. Reverts carry structured
// error data on the RPC error; transport failures do not.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	return errors.As(err, &dataErr)
}

// call performs a read-only contract call and returns the raw return data.
// Errors that never reached the node wrap market.ErrLedgerUnavailable so
// callers can tell a transport failure from a contract rejection.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	data, err := MarketABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Call)
	defer cancel()

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("chain: %s rejected: %w", method, err)
		}
		return nil, fmt.Errorf("chain: %s: %v: %w", method, err, market.ErrLedgerUnavailable)
	}
	return out, nil
}

// TotalServices returns the number of registered services.
func (c *Client) TotalServices(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, "totalServicesCount")
	if err != nil {
		return 0, err
	}
	values, err := MarketABI.Unpack("totalServicesCount", out)
	if err != nil {
		return 0, fmt.Errorf("chain: decode totalServicesCount: %w", err)
	}
	return values[0].(*big.Int).Uint64(), nil
}

// GetService reads one service record from the registry.
func (c *Client) GetService(ctx context.Context, id uint64) (market.Service, error) {
	out, err := c.call(ctx, "getService", new(big.Int).SetUint64(id))
	if err != nil {
		return market.Service{}, err
	}
	return decodeService(id, out)
}

// decodeService unpacks a getService return payload. Kept separate so the
// registrar can skip individually malformed listings without failing the
// whole scan.
func decodeService(id uint64, data []byte) (market.Service, error) {
	values, err := MarketABI.Unpack("getService", data)
	if err != nil {
		return market.Service{}, fmt.Errorf("chain: decode service %d: %w", id, err)
	}
	return market.Service{
		ID:           id,
		Owner:        values[0].(common.Address),
		Name:         values[1].(string),
		Endpoint:     values[2].(string),
		PricePerCall: values[3].(*big.Int),
		TotalCalls:   values[4].(*big.Int).Uint64(),
		Reputation:   values[5].(*big.Int).Uint64(),
		IsActive:     values[6].(bool),
	}, nil
}

// GetServiceStats reads the revenue counters for a service.
func (c *Client) GetServiceStats(ctx context.Context, id uint64) (market.ServiceStats, error) {
	out, err := c.call(ctx, "getServiceStats", new(big.Int).SetUint64(id))
	if err != nil {
		return market.ServiceStats{}, err
	}
	values, err := MarketABI.Unpack("getServiceStats", out)
	if err != nil {
		return market.ServiceStats{}, fmt.Errorf("chain: decode stats %d: %w", id, err)
	}
	return market.ServiceStats{
		TotalCalls:        values[0].(*big.Int).Uint64(),
		TotalRevenue:      values[1].(*big.Int),
		PendingWithdrawal: values[2].(*big.Int),
	}, nil
}

// transact signs and submits a contract write, returning the pending
// transaction without waiting for it to be mined.
func (c *Client) transact(ctx context.Context, value *big.Int, gasLimit uint64, method string, args ...interface{}) (*types.Transaction, error) {
	data, err := MarketABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Call)
	defer cancel()

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("chain: nonce: %v: %w", err, market.ErrLedgerUnavailable)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas price: %v: %w", err, market.ErrLedgerUnavailable)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign %s: %w", method, err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("chain: send %s rejected: %w", method, err)
		}
		return nil, fmt.Errorf("chain: send %s: %v: %w", method, err, market.ErrLedgerUnavailable)
	}
	return signed, nil
}

// SubmitServiceCall submits the paying callService transaction for a service
// at the given price. The ledger itself enforces the price: a stale or
// incorrect value reverts rather than silently succeeding.
func (c *Client) SubmitServiceCall(ctx context.Context, serviceID uint64, price *big.Int) (*types.Transaction, error) {
	return c.transact(ctx, price, callServiceGasLimit, "callService", new(big.Int).SetUint64(serviceID))
}

// WaitMined blocks until the transaction is mined or the finality timeout
// elapses.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Finality)
	defer cancel()
	return bind.WaitMined(ctx, c.eth, tx)
}

// RevertReason replays a reverted transaction as a read-only call at its
// mined block and extracts the chain's revert string. Falls back to the raw
// node error when no reason data is available.
func (c *Client) RevertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) string {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Call)
	defer cancel()

	msg := ethereum.CallMsg{
		From:     c.address,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	_, err := c.eth.CallContract(ctx, msg, receipt.BlockNumber)
	if err == nil {
		return "execution reverted"
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if reason, uerr := abi.UnpackRevert(common.FromHex(hexData)); uerr == nil {
				return reason
			}
		}
	}
	return err.Error()
}

// RegisterService submits a registerService transaction, waits for it to be
// mined, and returns the assigned service id. The id is taken from the
// ServiceRegistered event in the receipt; if no decodable event is present
// it falls back to reading totalServicesCount.
func (c *Client) RegisterService(ctx context.Context, name, endpoint string, category uint64, price *big.Int) (uint64, error) {
	tx, err := c.transact(ctx, nil, registerGasLimit, "registerService",
		name, endpoint, new(big.Int).SetUint64(category), price)
	if err != nil {
		return 0, err
	}

	receipt, err := c.WaitMined(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("chain: registration not mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, market.NewMarketError(market.ErrCodeTransactionReverted,
			"service registration reverted", market.ErrTransactionReverted).
			WithDetails("reason", c.RevertReason(ctx, tx, receipt))
	}

	for _, entry := range receipt.Logs {
		ev, perr := ParseServiceRegistered(*entry)
		if perr != nil {
			continue
		}
		if ev.Owner == c.address {
			return ev.ServiceID, nil
		}
	}

	c.log.Warn("no ServiceRegistered event in receipt, falling back to registry count",
		"tx", tx.Hash().Hex())
	return c.TotalServices(ctx)
}

// WithdrawRevenue submits a withdrawRevenue transaction for the service and
// waits for it to be mined.
func (c *Client) WithdrawRevenue(ctx context.Context, serviceID uint64) (common.Hash, error) {
	tx, err := c.transact(ctx, nil, withdrawGasLimit, "withdrawRevenue", new(big.Int).SetUint64(serviceID))
	if err != nil {
		return common.Hash{}, err
	}
	receipt, err := c.WaitMined(ctx, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: withdrawal not mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, market.NewMarketError(market.ErrCodeTransactionReverted,
			"withdrawal reverted", market.ErrTransactionReverted).
			WithDetails("reason", c.RevertReason(ctx, tx, receipt))
	}
	return tx.Hash(), nil
}
