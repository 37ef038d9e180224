package cache

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmint/mmagent/internal/stream"
	"github.com/flowmint/mmagent/pkg/types"
)

type fakeState struct {
	price   float64
	cloned  bool
	mutated bool
}

func (f *fakeState) SpotPrice(a, b common.Address) (float64, error) {
	return f.price, nil
}

func (f *fakeState) GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address) (types.SimResult, error) {
	f.mutated = true
	return types.SimResult{AmountOut: new(big.Int).Mul(amountIn, big.NewInt(2)), NewState: f, GasEstimate: 100000}, nil
}

func (f *fakeState) Clone() types.ProtocolState {
	return &fakeState{price: f.price, cloned: true}
}

var (
	tokenA = common.HexToAddress("0x1")
	tokenB = common.HexToAddress("0x2")
)

func TestApplyMessageUpsertAndRemove(t *testing.T) {
	c := New()

	c.ApplyMessage(stream.StreamMessage{
		BlockNumber: 1,
		NewComponents: []*types.Component{
			{ID: "comp-1", Tokens: []common.Address{tokenA, tokenB}},
		},
		StateDeltas: map[types.ComponentID]types.ProtocolState{
			"comp-1": &fakeState{price: 3000},
		},
	})

	comps := c.ListComponents()
	require.Len(t, comps, 1)
	assert.Equal(t, types.ComponentID("comp-1"), comps[0].ID)

	price, err := c.SpotPrice("comp-1", tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, price)

	c.ApplyMessage(stream.StreamMessage{
		BlockNumber:       2,
		RemovedComponents: []types.ComponentID{"comp-1"},
	})

	assert.Empty(t, c.ListComponents())
}

func TestSimulateClonesStateWithoutMutatingCache(t *testing.T) {
	c := New()
	original := &fakeState{price: 3000}
	c.ApplyMessage(stream.StreamMessage{
		BlockNumber:   1,
		NewComponents: []*types.Component{{ID: "comp-1", Tokens: []common.Address{tokenA, tokenB}}},
		StateDeltas:   map[types.ComponentID]types.ProtocolState{"comp-1": original},
	})

	result, err := c.Simulate("comp-1", big.NewInt(100), tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), result.AmountOut)
	assert.False(t, original.mutated, "simulating must not mutate the cached state")
}

func TestApplyMessageUpdatesBalancesAtomically(t *testing.T) {
	c := New()
	c.ApplyMessage(stream.StreamMessage{
		BlockNumber:   1,
		NewComponents: []*types.Component{{ID: "comp-1", Tokens: []common.Address{tokenA, tokenB}}},
	})

	c.ApplyMessage(stream.StreamMessage{
		BlockNumber: 2,
		BalanceDeltas: map[types.ComponentID]map[common.Address]*big.Int{
			"comp-1": {tokenA: big.NewInt(500)},
		},
	})

	comp, ok := c.Component("comp-1")
	require.True(t, ok)
	assert.Equal(t, big.NewInt(500), comp.Balances[tokenA])
}
