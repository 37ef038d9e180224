package supervisor

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "Booting", Booting.String())
	assert.Equal(t, "Connecting", Connecting.String())
	assert.Equal(t, "Streaming", Streaming.String())
	assert.Equal(t, "ShuttingDown", ShuttingDown.String())
}

func TestMedianSpotPriceOddCount(t *testing.T) {
	base, quote := common.HexToAddress("0x1"), common.HexToAddress("0x2")
	components := []*mmtypes.Component{
		{ID: "a", Tokens: []common.Address{base, quote}},
		{ID: "b", Tokens: []common.Address{base, quote}},
		{ID: "c", Tokens: []common.Address{base, quote}},
	}
	cache := cacheStub{components: components, prices: map[mmtypes.ComponentID]float64{"a": 100, "b": 110, "c": 90}}
	pair := mmtypes.Pair{Base: mmtypes.Token{Address: base}, Quote: mmtypes.Token{Address: quote}}

	median := medianSpotPrice(cache, pair)
	assert.Equal(t, 100.0, median)
}

func TestMedianSpotPriceNoComponentsReturnsZero(t *testing.T) {
	pair := mmtypes.Pair{Base: mmtypes.Token{Address: common.HexToAddress("0x1")}, Quote: mmtypes.Token{Address: common.HexToAddress("0x2")}}
	median := medianSpotPrice(cacheStub{}, pair)
	assert.Equal(t, 0.0, median)
}

func TestInventoryCapAppliesRatio(t *testing.T) {
	inv := mmtypes.Inventory{WalletBase: big.NewInt(1000), WalletQuote: big.NewInt(500)}
	capped := inventoryCap(mmtypes.SELL, inv, 0.1)
	assert.Equal(t, 0, capped.Cmp(big.NewInt(100)))
}

func TestInventoryCapFullBalanceWhenRatioUnset(t *testing.T) {
	inv := mmtypes.Inventory{WalletBase: big.NewInt(1000)}
	capped := inventoryCap(mmtypes.SELL, inv, 0)
	assert.Equal(t, 0, capped.Cmp(big.NewInt(1000)))
}

func TestInventoryCapZeroWhenBalanceNil(t *testing.T) {
	capped := inventoryCap(mmtypes.BUY, mmtypes.Inventory{}, 0.5)
	assert.Equal(t, 0, capped.Sign())
}

// cacheStub is a minimal Cache implementation for the medianSpotPrice tests.
type cacheStub struct {
	components []*mmtypes.Component
	prices     map[mmtypes.ComponentID]float64
}

func (c cacheStub) ListComponents() []*mmtypes.Component { return c.components }

func (c cacheStub) SpotPrice(id mmtypes.ComponentID, tokenA, tokenB common.Address) (float64, error) {
	return c.prices[id], nil
}
