package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// marketABIJSON is the consumed surface of the AgentMarket contract. The
// contract itself is an external collaborator; only this interface is
// assumed.
const marketABIJSON = `[
  {"type":"function","name":"callService","stateMutability":"payable",
   "inputs":[{"name":"service_id","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"registerService","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string"},{"name":"endpoint","type":"string"},
             {"name":"category","type":"uint256"},{"name":"price_per_call","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getService","stateMutability":"view",
   "inputs":[{"name":"service_id","type":"uint256"}],
   "outputs":[{"name":"owner","type":"address"},{"name":"name","type":"string"},
              {"name":"endpoint","type":"string"},{"name":"price_per_call","type":"uint256"},
              {"name":"total_calls","type":"uint256"},{"name":"reputation","type":"uint256"},
              {"name":"is_active","type":"bool"}]},
  {"type":"function","name":"getServiceStats","stateMutability":"view",
   "inputs":[{"name":"service_id","type":"uint256"}],
   "outputs":[{"name":"total_calls","type":"uint256"},{"name":"total_revenue","type":"uint256"},
              {"name":"pending_withdrawal","type":"uint256"}]},
  {"type":"function","name":"totalServicesCount","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"withdrawRevenue","stateMutability":"nonpayable",
   "inputs":[{"name":"service_id","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"ServiceCalled","anonymous":false,
   "inputs":[{"name":"service_id","type":"uint256","indexed":true},
             {"name":"payer","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"ServiceRegistered","anonymous":false,
   "inputs":[{"name":"service_id","type":"uint256","indexed":true},
             {"name":"owner","type":"address","indexed":true},
             {"name":"name","type":"string","indexed":false},
             {"name":"price_per_call","type":"uint256","indexed":false}]}
]`

// MarketABI is the parsed contract interface, shared by the client and the
// event decoders.
var MarketABI = mustParseABI()

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(marketABIJSON))
	if err != nil {
		panic("chain: invalid market ABI: " + err.Error())
	}
	return parsed
}
