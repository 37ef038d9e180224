// Package evaluator implements the opportunity evaluator (C5): per-pool
// spread computation against a reference price, side determination, and
// basic liquidity/notional filters, producing a block's Readjustment
// candidates in decreasing |spread| order.
package evaluator

import (
	"math"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flowmint/mmagent/pkg/util"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// SpotPricer is the subset of the protocol cache the evaluator needs.
type SpotPricer interface {
	SpotPrice(id mmtypes.ComponentID, tokenA, tokenB common.Address) (float64, error)
}

// Config holds the thresholds the evaluator applies per candidate.
type Config struct {
	MinWatchSpreadBps float64
	MinNotionalUSD    float64
	ReserveEpsilon    float64 // minimum normalized reserve on the selling side
}

// Evaluate walks components belonging to pair, computing a spread against
// reference (expressed quote-per-base) for each, and returns the surviving
// Readjustments ordered by decreasing |spread_bps|.
//
// Side convention: reference and spot are both quote-per-base. spot >
// reference means base is relatively expensive in the pool, so the agent
// sells base into it, pushing the pool price back down toward reference.
// spot < reference means base is cheap there, so the agent buys it. Base and
// quote are always identified by pair's configured addresses, never by a
// component's token-array position: Component.Tokens is only a superset
// check ("contains {base, quote}") with no ordering guarantee, and pools may
// carry more than two tokens.
func Evaluate(components []*mmtypes.Component, prices SpotPricer, reference float64, pair mmtypes.Pair, cfg Config, market mmtypes.MarketContext) []mmtypes.Readjustment {
	if reference <= 0 {
		return nil
	}

	base, quote := pair.Base.Address, pair.Quote.Address

	var out []mmtypes.Readjustment
	for _, c := range components {
		if !c.HasToken(base) || !c.HasToken(quote) {
			continue
		}

		spot, err := prices.SpotPrice(c.ID, base, quote)
		if err != nil || spot <= 0 {
			continue
		}

		spreadBps := util.BpsBetween(spot, reference)
		if abs(spreadBps) <= cfg.MinWatchSpreadBps {
			continue
		}

		var side mmtypes.Side
		var sellToken common.Address
		var sellDecimals uint8
		var sellToGas *big.Float
		if spot > reference {
			side = mmtypes.SELL
			sellToken, sellDecimals, sellToGas = base, pair.Base.Decimals, market.BaseToGas
		} else {
			side = mmtypes.BUY
			sellToken, sellDecimals, sellToGas = quote, pair.Quote.Decimals, market.QuoteToGas
		}

		reserve, ok := c.Balances[sellToken]
		if !ok || reserve == nil {
			continue
		}
		if isBelowEpsilon(reserve, sellDecimals, cfg.ReserveEpsilon) {
			continue
		}

		notionalUSD, ok := reserveNotionalUSD(reserve, sellDecimals, sellToGas, market.GasTokenToUSD)
		if !ok || notionalUSD < cfg.MinNotionalUSD {
			continue
		}

		out = append(out, mmtypes.Readjustment{
			Component:      c,
			Side:           side,
			SpreadBps:      spreadBps,
			ReferencePrice: reference,
			BlockNumber:    0, // filled in by the caller once the block is known
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].SpreadBps) > abs(out[j].SpreadBps)
	})
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// isBelowEpsilon reports whether reserve, a raw on-chain integer normalized
// by 10^decimals, is smaller than epsilon. A reserve of exactly zero is
// always below epsilon.
func isBelowEpsilon(reserve *big.Int, decimals uint8, epsilon float64) bool {
	if reserve.Sign() <= 0 {
		return true
	}
	if epsilon <= 0 {
		return false
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	f := new(big.Float).Quo(new(big.Float).SetInt(reserve), new(big.Float).SetInt(scale))
	threshold := new(big.Float).SetFloat64(epsilon)
	return f.Cmp(threshold) < 0
}

// reserveNotionalUSD converts reserve (a raw on-chain integer with the given
// decimals) into USD via tokenToGas and gasToUSD. Returns ok=false if either
// rate is unavailable or non-positive, meaning the floor can't be evaluated
// and the candidate must be skipped — this is the "gas-token→USD rate is
// non-positive" / "USD value floor is not met" guard from the same rule.
func reserveNotionalUSD(reserve *big.Int, decimals uint8, tokenToGas, gasToUSD *big.Float) (float64, bool) {
	if tokenToGas == nil || gasToUSD == nil {
		return 0, false
	}
	if tokenToGas.Sign() <= 0 || gasToUSD.Sign() <= 0 {
		return 0, false
	}

	normalized := new(big.Float).Quo(new(big.Float).SetInt(reserve), big.NewFloat(math.Pow10(int(decimals))))
	usd := new(big.Float).Mul(new(big.Float).Mul(normalized, tokenToGas), gasToUSD)
	v, _ := usd.Float64()
	return v, true
}
