// Command buyer-agent runs the buyer side of the AgentMarket protocol: a
// chat endpoint that resolves purchase intents, pays on-chain, and fetches
// the paid resource from the seller.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	market "github.com/agentmarket/market-go"
	"github.com/agentmarket/market-go/buyer"
	"github.com/agentmarket/market-go/chain"
)

func main() {
	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	port := envOr("PORT", "5000")

	ctx := context.Background()
	client, err := chain.Dial(ctx, chainConfig(logger))
	if err != nil {
		logger.Error("ledger unavailable at startup", "error", err)
		os.Exit(1)
	}

	if balance, err := client.Balance(ctx); err == nil {
		logger.Info("wallet", "address", client.Address().Hex(), "balance_eth", market.WeiToEther(balance))
	}

	agent := &buyer.Agent{
		Orchestrator: &buyer.Orchestrator{Ledger: client, Logger: logger},
		Ledger:       client,
		Sessions:     buyer.NewSessions(),
		Logger:       logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	agent.Routes(r)

	color.Green("buyer agent online: wallet %s at :%s", client.Address().Hex(), port)
	if err := r.Run(":" + port); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func chainConfig(logger *slog.Logger) chain.Config {
	endpoints := strings.Split(envOr("RPC_URLS", "https://sepolia-rollup.arbitrum.io/rpc"), ",")
	for i := range endpoints {
		endpoints[i] = strings.TrimSpace(endpoints[i])
	}
	return chain.Config{
		Endpoints:  endpoints,
		Contract:   common.HexToAddress(os.Getenv("CONTRACT_ADDRESS")),
		PrivateKey: os.Getenv("BUYER_PRIVATE_KEY"),
		ChainID:    envInt("CHAIN_ID", 421614),
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

func envInt(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
