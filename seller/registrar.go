package seller

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/agentmarket/market-go"
)

// Registry is the slice of the ledger surface the registrar needs.
// *chain.Client satisfies it.
type Registry interface {
	TotalServices(ctx context.Context) (uint64, error)
	GetService(ctx context.Context, id uint64) (market.Service, error)
	RegisterService(ctx context.Context, name, endpoint string, category uint64, price *big.Int) (uint64, error)
}

// EnsureRegistered returns the service id for (owner, name), registering a
// new listing only if none exists. Safe to run on every restart: the scan of
// existing listings runs ascending by id and the first match wins, so
// repeated calls converge on the same id.
//
// A decode failure on any single listing is skipped, not fatal; other
// sellers' malformed entries must not block registration.
func EnsureRegistered(ctx context.Context, reg Registry, owner common.Address, cfg ServiceConfig, logger *slog.Logger) (uint64, error) {
	if logger == nil {
		logger = slog.Default()
	}

	total, err := reg.TotalServices(ctx)
	if err != nil {
		return 0, err
	}
	logger.Info("scanning existing services", "total", total)

	for id := uint64(1); id <= total; id++ {
		svc, err := reg.GetService(ctx, id)
		if err != nil {
			logger.Debug("skipping undecodable listing", "service_id", id, "error", err)
			continue
		}
		if svc.Owner == owner && svc.Name == cfg.Name {
			logger.Info("service already registered", "service_id", id)
			return id, nil
		}
	}

	logger.Info("registering new service", "name", cfg.Name, "price_wei", cfg.Price)
	id, err := reg.RegisterService(ctx, cfg.Name, cfg.Endpoint, cfg.Category, cfg.Price)
	if err != nil {
		return 0, err
	}
	logger.Info("service registered", "service_id", id)
	return id, nil
}
