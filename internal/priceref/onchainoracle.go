package priceref

import (
	"context"
	"fmt"
	"math/big"

	"github.com/flowmint/mmagent/pkg/contractclient"
)

var _ Provider = (*OnChainOracleProvider)(nil)

// OnChainOracleProvider reads a Chainlink-style latestRoundData-shaped
// oracle contract through a ContractClient, converting its fixed-point
// answer to a float64 using the oracle's declared decimals.
type OnChainOracleProvider struct {
	client   contractclient.ContractClient
	decimals int
}

// NewOnChainOracleProvider binds an oracle reader to client, an already
// address+ABI bound contractclient.ContractClient for the oracle contract.
func NewOnChainOracleProvider(client contractclient.ContractClient, decimals int) *OnChainOracleProvider {
	return &OnChainOracleProvider{client: client, decimals: decimals}
}

func (o *OnChainOracleProvider) FetchPrice(ctx context.Context) (float64, error) {
	outputs, err := o.client.Call(nil, "latestRoundData")
	if err != nil {
		return 0, fmt.Errorf("failed to read oracle: %w", err)
	}
	if len(outputs) < 2 {
		return 0, fmt.Errorf("unexpected oracle output shape: %d values", len(outputs))
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("oracle answer field is not an integer")
	}
	if answer.Sign() <= 0 {
		return 0, fmt.Errorf("oracle returned non-positive price")
	}

	scale := new(big.Float).SetFloat64(pow10(o.decimals))
	price := new(big.Float).Quo(new(big.Float).SetInt(answer), scale)
	f, _ := price.Float64()
	return f, nil
}

func pow10(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
