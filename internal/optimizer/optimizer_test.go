package optimizer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// concaveSimulator returns amountOut as a diminishing-returns function of
// amountIn (out = in - in^2/scale), so profit has a single interior peak,
// the shape the golden-section search is designed for.
type concaveSimulator struct {
	scale float64
}

func (s concaveSimulator) Simulate(id mmtypes.ComponentID, amountIn *big.Int, tokenIn, tokenOut common.Address) (mmtypes.SimResult, error) {
	in, _ := new(big.Float).SetInt(amountIn).Float64()
	out := in - (in*in)/s.scale
	if out < 0 {
		out = 0
	}
	return mmtypes.SimResult{AmountOut: floatToBigInt(out), GasEstimate: 100000}, nil
}

func TestOptimizeFindsInteriorMaximum(t *testing.T) {
	sim := concaveSimulator{scale: 1e7}
	readjustment := mmtypes.Readjustment{
		Component:      &mmtypes.Component{ID: "p1"},
		ReferencePrice: 0.5, // generous reference so profit stays positive across a wide band
	}
	cfg := Config{MaxIterations: 60, MinExecutableBps: 0, MaxSlippagePct: 1}

	result := Optimize(sim, readjustment, common.HexToAddress("0x1"), common.HexToAddress("0x2"), big.NewInt(1), big.NewInt(5_000_000), cfg)
	require.False(t, result.Rejected)
	assert.True(t, result.AmountIn.Sign() > 0)
	assert.True(t, result.ProfitDeltaBps > 0)
}

func TestOptimizeRejectsEmptyInterval(t *testing.T) {
	sim := concaveSimulator{scale: 1e7}
	readjustment := mmtypes.Readjustment{Component: &mmtypes.Component{ID: "p1"}, ReferencePrice: 1}

	result := Optimize(sim, readjustment, common.HexToAddress("0x1"), common.HexToAddress("0x2"), big.NewInt(100), big.NewInt(100), Config{})
	assert.True(t, result.Rejected)
}

func TestOptimizeRejectsBelowMinimumExecutableSpread(t *testing.T) {
	sim := concaveSimulator{scale: 1e12}
	readjustment := mmtypes.Readjustment{Component: &mmtypes.Component{ID: "p1"}, ReferencePrice: 1.5}
	cfg := Config{MaxIterations: 40, MinExecutableBps: 1_000_000}

	result := Optimize(sim, readjustment, common.HexToAddress("0x1"), common.HexToAddress("0x2"), big.NewInt(1), big.NewInt(1000), cfg)
	assert.True(t, result.Rejected)
}
