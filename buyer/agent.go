package buyer

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	market "github.com/agentmarket/market-go"
)

// CatalogLedger extends the orchestrator's ledger surface with the reads the
// chat agent needs: listing the registry and the wallet balance.
// *chain.Client satisfies it.
type CatalogLedger interface {
	Ledger
	TotalServices(ctx context.Context) (uint64, error)
	Balance(ctx context.Context) (*big.Int, error)
}

// ChatRequest is the chat endpoint's request body.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the chat endpoint's response body.
type ChatResponse struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	Action        string        `json:"action"`
	TxHash        string        `json:"tx_hash,omitempty"`
	ServiceResult *SellerResult `json:"service_result,omitempty"`
}

// Agent is the buyer agent's HTTP surface: a chat endpoint that resolves
// purchase intents and a balance readout.
type Agent struct {
	Orchestrator *Orchestrator
	Ledger       CatalogLedger
	Sessions     *Sessions
	Logger       *slog.Logger
}

// Routes installs the agent's endpoints on a Gin engine.
func (a *Agent) Routes(r *gin.Engine) {
	r.POST("/chat", a.handleChat)
	r.GET("/balance", a.handleBalance)
}

// handleChat accepts a natural-language message, resolves it to a purchase
// intent where possible, and otherwise replies with the service catalog.
// Session state is keyed by the X-Session-Id header.
func (a *Agent) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ChatResponse{Success: false, Message: "invalid request body", Action: "chat"})
		return
	}

	sessionID := c.GetHeader("X-Session-Id")
	if sessionID == "" {
		sessionID = "default"
	}
	conv := a.Sessions.Get(sessionID)

	a.logger().Info("chat message", "session", sessionID, "message", req.Message)

	serviceID, ok := ParseIntent(req.Message, conv.LastServiceID)
	if !ok {
		reply := a.catalogReply(c.Request.Context())
		conv.Append(req.Message, reply)
		c.JSON(http.StatusOK, ChatResponse{Success: true, Message: reply, Action: "chat"})
		return
	}
	conv.LastServiceID = serviceID

	purchase := a.Orchestrator.Purchase(c.Request.Context(), serviceID, req.Message)

	response := ChatResponse{Action: "purchase"}
	if purchase.TxHash != (common.Hash{}) {
		response.TxHash = purchase.TxHash.Hex()
	}

	switch {
	case purchase.State == StateDone:
		response.Success = true
		response.ServiceResult = purchase.Result
		if purchase.Result != nil && purchase.Result.ImageURL != "" {
			response.Message = "Service delivered! Image: " + purchase.Result.ImageURL
		} else {
			response.Message = "Service delivered!"
		}
	case market.CodeOf(purchase.Err) == market.ErrCodeDeliveryFailed:
		// Payment went through; only delivery failed. The caller must be
		// able to tell this apart from a failed payment.
		response.Success = false
		response.Message = fmt.Sprintf(
			"Payment confirmed (%s) but delivery failed; retry delivery with the same proof instead of paying again",
			purchase.TxHash.Hex())
	default:
		response.Success = false
		response.Message = purchase.Err.Error()
	}

	conv.Append(req.Message, response.Message)
	c.JSON(http.StatusOK, response)
}

// handleBalance reports the buyer wallet's address and balance.
func (a *Agent) handleBalance(c *gin.Context) {
	balance, err := a.Ledger.Balance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":     a.Ledger.Address().Hex(),
		"balance":     market.WeiToEther(balance),
		"balance_wei": balance.String(),
	})
}

// catalogReply renders the current registry for a message with no purchase
// intent. Listings that fail to decode are skipped; the registry read is
// always fresh, never a cached snapshot.
func (a *Agent) catalogReply(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("I can purchase AI services for you. Available services:\n")

	total, err := a.Ledger.TotalServices(ctx)
	if err != nil {
		b.WriteString("(service registry unavailable right now)\n")
	} else {
		for id := uint64(1); id <= total; id++ {
			svc, err := a.Ledger.GetService(ctx, id)
			if err != nil || !svc.IsActive {
				continue
			}
			fmt.Fprintf(&b, "- Service %d: %s (%s ETH)\n", svc.ID, svc.Name, market.WeiToEther(svc.PricePerCall))
		}
	}

	b.WriteString("\nSay \"purchase N\" where N is the service ID. Reply \"yes\" to confirm the last suggestion.")
	return b.String()
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
