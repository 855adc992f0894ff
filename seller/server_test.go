package seller

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	market "github.com/agentmarket/market-go"
	markethttp "github.com/agentmarket/market-go/http"
	"github.com/agentmarket/market-go/verify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeLedger struct {
	stats      market.ServiceStats
	statsErr   error
	withdrawTx common.Hash

	withdrawals int
}

func (f *fakeLedger) GetServiceStats(ctx context.Context, id uint64) (market.ServiceStats, error) {
	return f.stats, f.statsErr
}

func (f *fakeLedger) WithdrawRevenue(ctx context.Context, id uint64) (common.Hash, error) {
	f.withdrawals++
	return f.withdrawTx, nil
}

func (f *fakeLedger) Address() common.Address         { return ownerAddr }
func (f *fakeLedger) ContractAddress() common.Address { return common.HexToAddress("0x3333333333333333333333333333333333333333") }
func (f *fakeLedger) ChainID() int64                  { return 421614 }
func (f *fakeLedger) Network() string                 { return "arbitrum-sepolia" }

type stubVerifier struct {
	result verify.Result
	err    error
}

func (s *stubVerifier) Verify(ctx context.Context, proof common.Hash, expectedServiceID uint64) (verify.Result, error) {
	return s.result, s.err
}

func testServer(ledger *fakeLedger, verifier markethttp.PaymentVerifier) *gin.Engine {
	server := &Server{
		Ledger:    ledger,
		Verifier:  verifier,
		ServiceID: 3,
		Config:    testServiceConfig(),
	}
	r := gin.New()
	server.Routes(r)
	return r
}

func TestGenerateWithoutPayment(t *testing.T) {
	r := testServer(&fakeLedger{}, &stubVerifier{})

	body := bytes.NewBufferString(`{"prompt":"a logo"}`)
	req := httptest.NewRequest(http.MethodPost, "/generate", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}

	var advert market.PaymentRequired
	if err := json.NewDecoder(rec.Body).Decode(&advert); err != nil {
		t.Fatalf("decode 402 body: %v", err)
	}
	if len(advert.Accepts) != 1 {
		t.Fatalf("accepts length = %d, want 1", len(advert.Accepts))
	}
	opt := advert.Accepts[0]
	if opt.Method != "callService" {
		t.Errorf("method = %q, want callService", opt.Method)
	}
	if len(opt.Params) != 1 || opt.Params[0] != 3 {
		t.Errorf("params = %v, want [3]", opt.Params)
	}
	if opt.ChainID != 421614 {
		t.Errorf("chain id = %d, want 421614", opt.ChainID)
	}
	if opt.Amount != testServiceConfig().Price.String() {
		t.Errorf("amount = %q, want %q", opt.Amount, testServiceConfig().Price.String())
	}
}

func TestGenerateWithValidPayment(t *testing.T) {
	verifier := &stubVerifier{result: verify.Result{
		Valid:     true,
		ServiceID: 3,
		Payer:     otherAddr,
		Amount:    big.NewInt(10_000_000_000_000_000),
	}}
	r := testServer(&fakeLedger{}, verifier)

	proof := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	body := bytes.NewBufferString(`{"prompt":"an ai portrait","caller":"0x2222222222222222222222222222222222222222"}`)
	req := httptest.NewRequest(http.MethodPost, "/generate", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(market.PaymentHeader, proof)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	fulfillment := markethttp.GetFulfillment(&http.Response{Header: rec.Header()})
	if fulfillment == nil {
		t.Fatal("fulfillment header missing")
	}
	if fulfillment.TxHash != proof {
		t.Errorf("fulfillment tx = %q, want the presented proof", fulfillment.TxHash)
	}

	var resp struct {
		Success   bool   `json:"success"`
		Category  string `json:"category"`
		ImageURL  string `json:"image_url"`
		PaymentTx string `json:"payment_tx"`
		Payer     string `json:"payer"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Category != "artificial-intelligence,technology" {
		t.Errorf("category = %q", resp.Category)
	}
	if resp.ImageURL == "" {
		t.Error("image URL missing")
	}
	if resp.PaymentTx != proof {
		t.Errorf("payment_tx = %q, want the presented proof", resp.PaymentTx)
	}
	if resp.Payer != otherAddr.Hex() {
		t.Errorf("payer = %q, want %q", resp.Payer, otherAddr.Hex())
	}
}

func TestGenerateTestBypassesGate(t *testing.T) {
	r := testServer(&fakeLedger{}, &stubVerifier{result: verify.Result{Reason: verify.ReasonPaymentNotFound}})

	body := bytes.NewBufferString(`{"prompt":"smoke test"}`)
	req := httptest.NewRequest(http.MethodPost, "/generate-test", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestWithdrawRefusesWhenNothingPending(t *testing.T) {
	ledger := &fakeLedger{stats: market.ServiceStats{PendingWithdrawal: big.NewInt(0)}}
	r := testServer(ledger, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/withdraw", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ledger.withdrawals != 0 {
		t.Errorf("withdrawals = %d, want 0 when nothing is pending", ledger.withdrawals)
	}
}

func TestWithdrawSweepsPendingRevenue(t *testing.T) {
	ledger := &fakeLedger{
		stats:      market.ServiceStats{PendingWithdrawal: big.NewInt(5_000_000_000_000_000)},
		withdrawTx: common.HexToHash("0xeeee"),
	}
	r := testServer(ledger, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPost, "/withdraw", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ledger.withdrawals != 1 {
		t.Errorf("withdrawals = %d, want 1", ledger.withdrawals)
	}

	var resp struct {
		Success bool   `json:"success"`
		TxHash  string `json:"tx_hash"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.TxHash != ledger.withdrawTx.Hex() {
		t.Errorf("tx_hash = %q, want %q", resp.TxHash, ledger.withdrawTx.Hex())
	}
}

func TestHealth(t *testing.T) {
	ledger := &fakeLedger{stats: market.ServiceStats{TotalCalls: 4, TotalRevenue: big.NewInt(1), PendingWithdrawal: big.NewInt(1)}}
	r := testServer(ledger, &stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "online" {
		t.Errorf("status = %v, want online", resp["status"])
	}
}
