package seller

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	market "github.com/agentmarket/market-go"
)

var (
	ownerAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeRegistry is an in-memory Registry with per-listing decode error
// injection.
type fakeRegistry struct {
	services  map[uint64]market.Service
	decodeErr map[uint64]error

	registrations int
}

func (f *fakeRegistry) TotalServices(ctx context.Context) (uint64, error) {
	var max uint64
	for id := range f.services {
		if id > max {
			max = id
		}
	}
	for id := range f.decodeErr {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (f *fakeRegistry) GetService(ctx context.Context, id uint64) (market.Service, error) {
	if err, ok := f.decodeErr[id]; ok {
		return market.Service{}, err
	}
	svc, ok := f.services[id]
	if !ok {
		return market.Service{}, errors.New("no such service")
	}
	return svc, nil
}

func (f *fakeRegistry) RegisterService(ctx context.Context, name, endpoint string, category uint64, price *big.Int) (uint64, error) {
	f.registrations++
	id, _ := f.TotalServices(ctx)
	id++
	if f.services == nil {
		f.services = make(map[uint64]market.Service)
	}
	f.services[id] = market.Service{
		ID: id, Owner: ownerAddr, Name: name, Endpoint: endpoint,
		PricePerCall: price, IsActive: true,
	}
	return id, nil
}

func testServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:     "HD Image Generator",
		Endpoint: "http://localhost:3001/generate",
		Price:    big.NewInt(10_000_000_000_000_000),
	}
}

func TestEnsureRegisteredFindsExisting(t *testing.T) {
	reg := &fakeRegistry{services: map[uint64]market.Service{
		1: {ID: 1, Owner: otherAddr, Name: "HD Image Generator"},
		2: {ID: 2, Owner: ownerAddr, Name: "HD Image Generator"},
	}}

	id, err := EnsureRegistered(context.Background(), reg, ownerAddr, testServiceConfig(), nil)
	if err != nil {
		t.Fatalf("EnsureRegistered failed: %v", err)
	}
	if id != 2 {
		t.Errorf("service id = %d, want 2 (owner and name must both match)", id)
	}
	if reg.registrations != 0 {
		t.Errorf("registrations = %d, want 0", reg.registrations)
	}
}

func TestEnsureRegisteredRegistersWhenMissing(t *testing.T) {
	reg := &fakeRegistry{services: map[uint64]market.Service{
		1: {ID: 1, Owner: ownerAddr, Name: "Different Service"},
	}}

	id, err := EnsureRegistered(context.Background(), reg, ownerAddr, testServiceConfig(), nil)
	if err != nil {
		t.Fatalf("EnsureRegistered failed: %v", err)
	}
	if id != 2 {
		t.Errorf("service id = %d, want 2", id)
	}
	if reg.registrations != 1 {
		t.Errorf("registrations = %d, want 1", reg.registrations)
	}
}

func TestEnsureRegisteredSkipsUndecodableListings(t *testing.T) {
	reg := &fakeRegistry{
		services: map[uint64]market.Service{
			3: {ID: 3, Owner: ownerAddr, Name: "HD Image Generator"},
		},
		decodeErr: map[uint64]error{
			1: errors.New("decode failure"),
			2: errors.New("decode failure"),
		},
	}

	id, err := EnsureRegistered(context.Background(), reg, ownerAddr, testServiceConfig(), nil)
	if err != nil {
		t.Fatalf("malformed listings must be skipped, got %v", err)
	}
	if id != 3 {
		t.Errorf("service id = %d, want 3", id)
	}
	if reg.registrations != 0 {
		t.Errorf("registrations = %d, want 0", reg.registrations)
	}
}

// Restarting the agent must converge on the same id without re-registering.
func TestEnsureRegisteredIdempotent(t *testing.T) {
	reg := &fakeRegistry{}
	cfg := testServiceConfig()

	first, err := EnsureRegistered(context.Background(), reg, ownerAddr, cfg, nil)
	if err != nil {
		t.Fatalf("first EnsureRegistered failed: %v", err)
	}
	second, err := EnsureRegistered(context.Background(), reg, ownerAddr, cfg, nil)
	if err != nil {
		t.Fatalf("second EnsureRegistered failed: %v", err)
	}
	if first != second {
		t.Errorf("ids diverged across restarts: %d vs %d", first, second)
	}
	if reg.registrations != 1 {
		t.Errorf("registrations = %d, want 1", reg.registrations)
	}
}
