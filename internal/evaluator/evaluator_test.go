package evaluator

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

type fakePricer struct {
	prices map[mmtypes.ComponentID]float64
}

func (f fakePricer) SpotPrice(id mmtypes.ComponentID, tokenA, tokenB common.Address) (float64, error) {
	return f.prices[id], nil
}

var (
	base  = common.HexToAddress("0x1")
	quote = common.HexToAddress("0x2")
	pair  = mmtypes.Pair{
		Base:  mmtypes.Token{Address: base, Decimals: 18},
		Quote: mmtypes.Token{Address: quote, Decimals: 18},
	}
)

// richMarket supplies conversion rates generous enough that the USD-floor
// check never trips, for tests exercising only the spread/side/reserve
// logic.
func richMarket() mmtypes.MarketContext {
	return mmtypes.MarketContext{
		BaseToGas:     big.NewFloat(1),
		QuoteToGas:    big.NewFloat(1),
		GasTokenToUSD: big.NewFloat(1e6),
	}
}

func component(id string, tokens []common.Address, baseReserve, quoteReserve int64) *mmtypes.Component {
	return &mmtypes.Component{
		ID:     mmtypes.ComponentID(id),
		Tokens: tokens,
		Balances: map[common.Address]*big.Int{
			base:  big.NewInt(baseReserve),
			quote: big.NewInt(quoteReserve),
		},
	}
}

func TestEvaluateSkipsWithinWatchBand(t *testing.T) {
	c := component("p1", []common.Address{base, quote}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 100.01}}

	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, richMarket())
	assert.Empty(t, out)
}

func TestEvaluateSellsBaseWhenSpotAboveReference(t *testing.T) {
	c := component("p1", []common.Address{base, quote}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, richMarket())
	require.Len(t, out, 1)
	assert.Equal(t, mmtypes.SELL, out[0].Side)
}

func TestEvaluateBuysBaseWhenSpotBelowReference(t *testing.T) {
	c := component("p1", []common.Address{base, quote}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 90}}

	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, richMarket())
	require.Len(t, out, 1)
	assert.Equal(t, mmtypes.BUY, out[0].Side)
}

// TestEvaluateSideIndependentOfTokenArrayOrder pins down the fix for the
// ambiguous-ordering bug: base/quote are identified by the configured Pair's
// addresses, never by Component.Tokens position, so a component whose
// indexer returned [quote, base] must evaluate identically to one returned
// as [base, quote].
func TestEvaluateSideIndependentOfTokenArrayOrder(t *testing.T) {
	reversed := component("p1", []common.Address{quote, base}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	out := Evaluate([]*mmtypes.Component{reversed}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, richMarket())
	require.Len(t, out, 1)
	assert.Equal(t, mmtypes.SELL, out[0].Side)
}

func TestEvaluateFiltersComponentsMissingConfiguredTokens(t *testing.T) {
	other := common.HexToAddress("0x3")
	c := component("p1", []common.Address{base, other}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, richMarket())
	assert.Empty(t, out)
}

func TestEvaluateSkipsDepletedSellSideReserve(t *testing.T) {
	c := component("p1", []common.Address{base, quote}, 0, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, richMarket())
	assert.Empty(t, out)
}

func TestEvaluateOrdersByDecreasingAbsoluteSpread(t *testing.T) {
	small := component("small", []common.Address{base, quote}, 1000, 1000)
	big_ := component("big", []common.Address{base, quote}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{
		"small": 101,
		"big":   120,
	}}

	out := Evaluate([]*mmtypes.Component{small, big_}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, richMarket())
	require.Len(t, out, 2)
	assert.Equal(t, mmtypes.ComponentID("big"), out[0].Component.ID)
	assert.Equal(t, mmtypes.ComponentID("small"), out[1].Component.ID)
}

func TestEvaluateRejectsNonPositiveGasTokenUSD(t *testing.T) {
	c := component("p1", []common.Address{base, quote}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	market := richMarket()
	market.GasTokenToUSD = nil
	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, market)
	assert.Empty(t, out)
}

func TestEvaluateRejectsMissingTokenToGasRate(t *testing.T) {
	c := component("p1", []common.Address{base, quote}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	market := richMarket()
	market.BaseToGas = nil
	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5}, market)
	assert.Empty(t, out)
}

func TestEvaluateEnforcesMinNotionalUSDFloor(t *testing.T) {
	// Base reserve of 1000 wei, worth nothing once decimal-normalized at 18
	// decimals, can never clear a $50 floor.
	c := component("p1", []common.Address{base, quote}, 1000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5, MinNotionalUSD: 50}, richMarket())
	assert.Empty(t, out)
}

func TestEvaluateMinNotionalUSDFloorMetWithSufficientReserve(t *testing.T) {
	c := component("p1", []common.Address{base, quote}, 1_000000000000000000, 1000)
	pricer := fakePricer{prices: map[mmtypes.ComponentID]float64{"p1": 105}}

	out := Evaluate([]*mmtypes.Component{c}, pricer, 100, pair, Config{MinWatchSpreadBps: 5, MinNotionalUSD: 50}, richMarket())
	require.Len(t, out, 1)
}
