// Command seller-agent runs the seller side of the AgentMarket protocol:
// it ensures its service is registered on-chain, then serves the
// payment-gated generation endpoint.
package main

import (
	"context"
	"log/slog"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	market "github.com/agentmarket/market-go"
	"github.com/agentmarket/market-go/chain"
	"github.com/agentmarket/market-go/seller"
	"github.com/agentmarket/market-go/verify"
)

// lowBalanceWarning is the threshold below which registration may fail.
var lowBalanceWarning = big.NewInt(1e15) // 0.001 ETH

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	port := envOr("PORT", "3001")
	name := envOr("SERVICE_NAME", "HD Image Generator (Unsplash)")
	endpoint := envOr("PUBLIC_ENDPOINT", "http://localhost:"+port+"/generate")
	priceEth := envOr("SERVICE_PRICE_ETH", "0.01")
	category := envUint("SERVICE_CATEGORY", 0)

	price, err := market.EtherToWei(priceEth)
	if err != nil {
		logger.Error("invalid SERVICE_PRICE_ETH", "value", priceEth)
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := chain.Dial(ctx, chainConfig(logger, "SELLER_PRIVATE_KEY"))
	if err != nil {
		// Registration cannot proceed without the ledger; this is fatal for
		// the seller, unlike per-request verification failures.
		logger.Error("ledger unavailable at startup", "error", err)
		os.Exit(1)
	}

	if balance, err := client.Balance(ctx); err == nil {
		logger.Info("wallet", "address", client.Address().Hex(), "balance_eth", market.WeiToEther(balance))
		if balance.Cmp(lowBalanceWarning) < 0 {
			logger.Warn("low balance, service registration may fail")
		}
	}

	cfg := seller.ServiceConfig{Name: name, Endpoint: endpoint, Category: category, Price: price}
	serviceID, err := seller.EnsureRegistered(ctx, client, client.Address(), cfg, logger)
	if err != nil {
		logger.Error("service registration failed", "error", err)
		os.Exit(1)
	}

	server := &seller.Server{
		Ledger:    client,
		Verifier:  &verify.Verifier{Receipts: client},
		ServiceID: serviceID,
		Config:    cfg,
		Logger:    logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	server.Routes(r)

	color.Green("seller agent online: service %d (%s) at :%s", serviceID, name, port)
	if err := r.Run(":" + port); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func chainConfig(logger *slog.Logger, keyVar string) chain.Config {
	endpoints := strings.Split(envOr("RPC_URLS", "https://sepolia-rollup.arbitrum.io/rpc"), ",")
	for i := range endpoints {
		endpoints[i] = strings.TrimSpace(endpoints[i])
	}
	return chain.Config{
		Endpoints:  endpoints,
		Contract:   common.HexToAddress(os.Getenv("CONTRACT_ADDRESS")),
		PrivateKey: os.Getenv(keyVar),
		ChainID:    int64(envUint("CHAIN_ID", 421614)),
		Network:    envOr("NETWORK", "arbitrum-sepolia"),
		Logger:     logger,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
