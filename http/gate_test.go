package http

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/agentmarket/market-go"
	"github.com/agentmarket/market-go/verify"
)

// stubVerifier returns a canned result and records how it was called.
type stubVerifier struct {
	result verify.Result
	err    error

	calls     int
	lastProof common.Hash
	lastID    uint64
}

func (s *stubVerifier) Verify(ctx context.Context, proof common.Hash, expectedServiceID uint64) (verify.Result, error) {
	s.calls++
	s.lastProof = proof
	s.lastID = expectedServiceID
	return s.result, s.err
}

func testAccepts() []market.PaymentOption {
	return []market.PaymentOption{{
		Type:            "chain-native",
		Network:         "arbitrum-sepolia",
		ChainID:         421614,
		Amount:          "10000000000000000",
		Recipient:       "0x1111111111111111111111111111111111111111",
		ContractAddress: "0x3333333333333333333333333333333333333333",
		Method:          "callService",
		Params:          []uint64{3},
	}}
}

func gateFor(v PaymentVerifier, handlerCalled *bool, payment **Payment) http.Handler {
	gate := NewPaymentGate(GateConfig{
		Verifier:  v,
		ServiceID: 3,
		Accepts:   testAccepts(),
		Message:   "Payment required",
	})
	return gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*handlerCalled = true
		if payment != nil {
			*payment = GetPaymentFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestGateNoPaymentHeader(t *testing.T) {
	verifier := &stubVerifier{}
	var handlerCalled bool
	handler := gateFor(verifier, &handlerCalled, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/generate", nil))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if handlerCalled {
		t.Error("resource handler must not run without payment")
	}
	if verifier.calls != 0 {
		t.Error("verifier must not be consulted without a proof")
	}

	var body market.PaymentRequired
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode 402 body: %v", err)
	}
	if body.ProtocolVersion != market.ProtocolVersion {
		t.Errorf("protocol version = %q, want %q", body.ProtocolVersion, market.ProtocolVersion)
	}
	if len(body.Accepts) != 1 {
		t.Fatalf("accepts length = %d, want 1", len(body.Accepts))
	}
	if body.Accepts[0].Method != "callService" {
		t.Errorf("accepts method = %q, want callService", body.Accepts[0].Method)
	}
	if body.Error != "" {
		t.Errorf("initial advertisement must carry no error, got %q", body.Error)
	}
}

func TestGateValidPayment(t *testing.T) {
	verifier := &stubVerifier{result: verify.Result{
		Valid:     true,
		ServiceID: 3,
		Payer:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Amount:    big.NewInt(1),
	}}
	var handlerCalled bool
	var payment *Payment
	handler := gateFor(verifier, &handlerCalled, &payment)

	proof := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set(market.PaymentHeader, proof)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !handlerCalled {
		t.Fatal("resource handler did not run for a valid payment")
	}
	if verifier.lastProof != common.HexToHash(proof) {
		t.Errorf("verifier proof = %s, want %s", verifier.lastProof.Hex(), proof)
	}
	if verifier.lastID != 3 {
		t.Errorf("verifier service id = %d, want 3", verifier.lastID)
	}
	if payment == nil {
		t.Fatal("payment missing from request context")
	}
	if payment.Proof != proof {
		t.Errorf("context proof = %q, want %q", payment.Proof, proof)
	}
	if !payment.Result.Valid {
		t.Error("context result not marked valid")
	}
}

func TestGateRejectedPayment(t *testing.T) {
	verifier := &stubVerifier{result: verify.Result{Reason: verify.ReasonPaymentNotFound}}
	var handlerCalled bool
	handler := gateFor(verifier, &handlerCalled, nil)

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set(market.PaymentHeader, "0xbbbb")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if handlerCalled {
		t.Error("resource handler must not run for a rejected proof")
	}

	var body market.PaymentRequired
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode 402 body: %v", err)
	}
	if body.Error != verify.ReasonPaymentNotFound {
		t.Errorf("rejection reason = %q, want %q", body.Error, verify.ReasonPaymentNotFound)
	}
}

func TestGateTransportFailure(t *testing.T) {
	verifier := &stubVerifier{err: errors.New("rpc down")}
	var handlerCalled bool
	handler := gateFor(verifier, &handlerCalled, nil)

	req := httptest.NewRequest(http.MethodPost, "/generate", nil)
	req.Header.Set(market.PaymentHeader, "0xcccc")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when the ledger cannot be consulted", rec.Code)
	}
	if handlerCalled {
		t.Error("resource handler must not run when verification is unavailable")
	}
}

func TestFulfillmentRoundTrip(t *testing.T) {
	header := http.Header{}
	if err := SetFulfillment(header, "0xdddd"); err != nil {
		t.Fatalf("SetFulfillment failed: %v", err)
	}

	resp := &http.Response{Header: header}
	got := GetFulfillment(resp)
	if got == nil {
		t.Fatal("fulfillment header not parsed")
	}
	if got.Status != market.FulfillmentOK {
		t.Errorf("status = %q, want %q", got.Status, market.FulfillmentOK)
	}
	if got.TxHash != "0xdddd" {
		t.Errorf("tx hash = %q, want 0xdddd", got.TxHash)
	}
}

func TestGetPaymentFromContextMissing(t *testing.T) {
	if got := GetPaymentFromContext(context.Background()); got != nil {
		t.Errorf("expected nil payment for bare context, got %+v", got)
	}
}
