// Package seller implements the seller-side agent: idempotent service
// registration, the payment-gated resource endpoint, and the revenue
// surface (health, earnings, withdrawal).
package seller

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	market "github.com/agentmarket/market-go"
	markethttp "github.com/agentmarket/market-go/http"
	marketgin "github.com/agentmarket/market-go/http/gin"
)

// ServiceConfig declares the service this agent sells.
type ServiceConfig struct {
	// Name identifies the listing; (owner, Name) is the registration key.
	Name string

	// Endpoint is the public URL of the gated resource endpoint.
	Endpoint string

	// Category is the ledger-side service category.
	Category uint64

	// Price is the per-call price in wei.
	Price *big.Int
}

// Ledger is the slice of the chain client the server needs at request time.
type Ledger interface {
	GetServiceStats(ctx context.Context, id uint64) (market.ServiceStats, error)
	WithdrawRevenue(ctx context.Context, id uint64) (common.Hash, error)
	Address() common.Address
	ContractAddress() common.Address
	ChainID() int64
	Network() string
}

// Server is the seller agent's HTTP surface.
type Server struct {
	Ledger    Ledger
	Verifier  markethttp.PaymentVerifier
	ServiceID uint64
	Config    ServiceConfig
	Logger    *slog.Logger
}

// Accepts builds the 402 advertisement for this server's service: everything
// a buyer needs to construct the paying transaction on its own.
func (s *Server) Accepts() []market.PaymentOption {
	return []market.PaymentOption{{
		Type:            "chain-native",
		Network:         s.Ledger.Network(),
		ChainID:         s.Ledger.ChainID(),
		Amount:          s.Config.Price.String(),
		Recipient:       s.Ledger.Address().Hex(),
		TokenAddress:    common.Address{}.Hex(),
		ContractAddress: s.Ledger.ContractAddress().Hex(),
		Method:          "callService",
		Params:          []uint64{s.ServiceID},
	}}
}

// Routes installs the agent's endpoints on a Gin engine.
func (s *Server) Routes(r *gin.Engine) {
	gate := marketgin.NewPaymentGate(marketgin.GateConfig{
		Verifier:  s.Verifier,
		ServiceID: s.ServiceID,
		Accepts:   s.Accepts(),
		Message:   "Payment required: " + market.WeiToEther(s.Config.Price) + " ETH on " + s.Ledger.Network(),
		Logger:    s.Logger,
	})

	r.POST("/generate", gate, s.handleGenerate)
	r.POST("/generate-test", s.handleGenerateTest)
	r.GET("/health", s.handleHealth)
	r.GET("/earnings", s.handleEarnings)
	r.POST("/withdraw", s.handleWithdraw)
}

// generateRequest is the resource request payload.
type generateRequest struct {
	Prompt    string `json:"prompt"`
	Caller    string `json:"caller"`
	ServiceID uint64 `json:"serviceId"`
}

// handleGenerate produces the paid resource. It only runs behind the payment
// gate, so the request context always carries a verified payment. The
// fulfillment header echoes the proof; regenerating the resource never
// charges again, since charging happened on-chain.
func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	_ = c.ShouldBindJSON(&req)

	payment := marketgin.GetPaymentFromContext(c)
	if payment == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment context missing"})
		return
	}

	category := CategoryFor(req.Prompt)
	imageURL := ImageURL(req.Prompt)

	s.logger().Info("generating resource",
		"prompt", req.Prompt, "caller", req.Caller, "category", category)

	if err := markethttp.SetFulfillment(c.Writer.Header(), payment.Proof); err != nil {
		s.logger().Warn("failed to set fulfillment header", "error", err)
	}
	c.Header("Access-Control-Expose-Headers", market.FulfillmentHeader)

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"prompt":           req.Prompt,
		"category":         category,
		"image_url":        imageURL,
		"service_id":       s.ServiceID,
		"size":             "1024x1024",
		"quality":          "HD",
		"payment_verified": true,
		"payment_tx":       payment.Proof,
		"payer":            payment.Result.Payer.Hex(),
		"message":          "HD photo retrieved, payment verified",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGenerateTest is the ungated smoke-test variant of the resource
// endpoint.
func (s *Server) handleGenerateTest(c *gin.Context) {
	var req generateRequest
	_ = c.ShouldBindJSON(&req)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"prompt":    req.Prompt,
		"category":  CategoryFor(req.Prompt),
		"image_url": ImageURL(req.Prompt),
		"test_mode": true,
	})
}

// handleHealth reports liveness plus a best-effort stats readout.
func (s *Server) handleHealth(c *gin.Context) {
	response := gin.H{
		"status":     "online",
		"service":    s.Config.Name,
		"service_id": s.ServiceID,
		"price":      market.WeiToEther(s.Config.Price) + " ETH",
		"wallet":     s.Ledger.Address().Hex(),
		"contract":   s.Ledger.ContractAddress().Hex(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}

	if stats, err := s.Ledger.GetServiceStats(c.Request.Context(), s.ServiceID); err != nil {
		response["stats"] = gin.H{"error": "could not fetch stats"}
	} else {
		response["stats"] = gin.H{
			"total_calls":        stats.TotalCalls,
			"total_revenue":      market.WeiToEther(stats.TotalRevenue) + " ETH",
			"pending_withdrawal": market.WeiToEther(stats.PendingWithdrawal) + " ETH",
		}
	}

	c.JSON(http.StatusOK, response)
}

// handleEarnings reports the service's on-chain revenue counters.
func (s *Server) handleEarnings(c *gin.Context) {
	stats, err := s.Ledger.GetServiceStats(c.Request.Context(), s.ServiceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"service_id":         s.ServiceID,
		"service_name":       s.Config.Name,
		"owner":              s.Ledger.Address().Hex(),
		"price":              market.WeiToEther(s.Config.Price) + " ETH",
		"total_calls":        stats.TotalCalls,
		"total_revenue":      market.WeiToEther(stats.TotalRevenue) + " ETH",
		"pending_withdrawal": market.WeiToEther(stats.PendingWithdrawal) + " ETH",
	})
}

// handleWithdraw sweeps pending revenue to the owner account. Refuses when
// nothing is pending so callers don't burn gas on empty withdrawals.
func (s *Server) handleWithdraw(c *gin.Context) {
	stats, err := s.Ledger.GetServiceStats(c.Request.Context(), s.ServiceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if stats.PendingWithdrawal == nil || stats.PendingWithdrawal.Sign() == 0 {
		c.JSON(http.StatusOK, gin.H{"error": "no pending revenue"})
		return
	}

	txHash, err := s.Ledger.WithdrawRevenue(c.Request.Context(), s.ServiceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"amount":  market.WeiToEther(stats.PendingWithdrawal) + " ETH",
		"tx_hash": txHash.Hex(),
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
