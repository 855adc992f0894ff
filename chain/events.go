package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoMatch is returned when a log entry does not decode as the requested
// event. Callers scanning receipts treat it as "skip this entry", never as a
// verification failure: unrelated contracts emit unrelated logs.
var ErrNoMatch = errors.New("chain: log does not match event")

// ServiceCalledEvent is the structured fact extracted from a confirmed
// callService transaction: which service was paid for, by whom, and how much.
type ServiceCalledEvent struct {
	ServiceID uint64
	Payer     common.Address
	Amount    *big.Int
}

// ServiceRegisteredEvent is emitted by registerService.
type ServiceRegisteredEvent struct {
	ServiceID    uint64
	Owner        common.Address
	Name         string
	PricePerCall *big.Int
}

// ParseServiceCalled decodes a log entry against the ServiceCalled schema.
// Returns ErrNoMatch if the entry belongs to a different event.
func ParseServiceCalled(log types.Log) (*ServiceCalledEvent, error) {
	ev := MarketABI.Events["ServiceCalled"]
	if len(log.Topics) != 3 || log.Topics[0] != ev.ID {
		return nil, ErrNoMatch
	}

	values, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack ServiceCalled data: %w", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected ServiceCalled amount type %T", values[0])
	}

	return &ServiceCalledEvent{
		ServiceID: log.Topics[1].Big().Uint64(),
		Payer:     common.BytesToAddress(log.Topics[2].Bytes()),
		Amount:    amount,
	}, nil
}

// ParseServiceRegistered decodes a log entry against the ServiceRegistered
// schema. Returns ErrNoMatch if the entry belongs to a different event.
func ParseServiceRegistered(log types.Log) (*ServiceRegisteredEvent, error) {
	ev := MarketABI.Events["ServiceRegistered"]
	if len(log.Topics) != 3 || log.Topics[0] != ev.ID {
		return nil, ErrNoMatch
	}

	values, err := ev.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack ServiceRegistered data: %w", err)
	}
	name, ok := values[0].(string)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected ServiceRegistered name type %T", values[0])
	}
	price, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected ServiceRegistered price type %T", values[1])
	}

	return &ServiceRegisteredEvent{
		ServiceID:    log.Topics[1].Big().Uint64(),
		Owner:        common.BytesToAddress(log.Topics[2].Bytes()),
		Name:         name,
		PricePerCall: price,
	}, nil
}
