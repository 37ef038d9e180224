// Package optimizer implements the trade optimizer (C6): a bounded
// univariate search for the profit-maximizing input amount against a
// Readjustment, using golden-section search on log(amount_in) with
// bisection refinement.
package optimizer

import (
	"errors"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flowmint/mmagent/pkg/util"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// ErrOverflow is returned (and the candidate dropped) when the simulator
// can't produce a finite quote for an amount within bounds, e.g. an
// extreme-ratio tick crossing.
var ErrOverflow = errors.New("optimizer: simulation overflow")

// Simulator is the subset of the protocol cache the optimizer needs to
// value a candidate amount.
type Simulator interface {
	Simulate(id mmtypes.ComponentID, amountIn *big.Int, tokenIn, tokenOut common.Address) (mmtypes.SimResult, error)
}

// Config bounds and tolerances for the search.
type Config struct {
	MaxIterations        int
	RelativeTolerance    float64 // stop when the log(amount_in) bracket is no wider than this; profit improvement is not tracked
	MinExecutableBps     float64
	MaxSlippagePct       float64
	GasPriceWei          *big.Int
	GasTokenToOutputRate float64 // converts gas cost (in gas-token units) to output-token units
}

// Result is the optimizer's verdict for one Readjustment.
type Result struct {
	AmountIn        *big.Int
	AmountOut       *big.Int
	MinAmountOut    *big.Int
	GasEstimate     uint64
	ProfitDeltaBps  float64
	Rejected        bool
	RejectedReason  error
}

const goldenRatio = 0.6180339887498949

// Optimize searches [aMin, aMax] (raw token-in integer bounds) for the
// amount_in maximizing profit, returning a dropped Result if nothing clears
// cfg.MinExecutableBps.
func Optimize(sim Simulator, r mmtypes.Readjustment, tokenIn, tokenOut common.Address, aMin, aMax *big.Int, cfg Config) Result {
	if aMin.Sign() <= 0 || aMax.Cmp(aMin) <= 0 {
		return Result{Rejected: true, RejectedReason: errors.New("optimizer: empty search interval")}
	}

	logMin := math.Log(bigIntToFloat(aMin))
	logMax := math.Log(bigIntToFloat(aMax))
	if !isFinite(logMin) || !isFinite(logMax) {
		return Result{Rejected: true, RejectedReason: ErrOverflow}
	}

	profitAt := func(logA float64) (amount *big.Int, amountOut *big.Int, gasEst uint64, profit float64, ok bool) {
		amount = floatToBigInt(math.Exp(logA))
		if amount.Sign() <= 0 {
			return nil, nil, 0, math.Inf(-1), false
		}
		simResult, err := sim.Simulate(r.Component.ID, amount, tokenIn, tokenOut)
		if err != nil {
			return nil, nil, 0, math.Inf(-1), false
		}
		out := bigIntToFloat(simResult.AmountOut)
		in := bigIntToFloat(amount)
		gasCost := gasCostInOutputUnits(simResult.GasEstimate, cfg)
		p := out - in*r.ReferencePrice - gasCost
		if !isFinite(p) {
			return nil, nil, 0, math.Inf(-1), false
		}
		return amount, simResult.AmountOut, simResult.GasEstimate, p, true
	}

	lo, hi := logMin, logMax
	var bestAmount, bestOut *big.Int
	var bestGas uint64
	bestProfit := math.Inf(-1)

	c := hi - (hi-lo)*goldenRatio
	d := lo + (hi-lo)*goldenRatio
	_, _, _, fc, okc := profitAt(c)
	_, _, _, fd, okd := profitAt(d)

	iterations := cfg.MaxIterations
	if iterations <= 0 {
		iterations = 40
	}
	tolerance := cfg.RelativeTolerance
	if tolerance <= 0 {
		tolerance = 1e-4
	}

	for i := 0; i < iterations && (hi-lo) > tolerance; i++ {
		if !okc && !okd {
			break
		}
		if fc > fd {
			hi = d
			d = c
			fd = fc
			c = hi - (hi-lo)*goldenRatio
			_, _, _, fc, okc = profitAt(c)
		} else {
			lo = c
			c = d
			fc = fd
			d = lo + (hi-lo)*goldenRatio
			_, _, _, fd, okd = profitAt(d)
		}
	}

	// Bisection refinement over the remaining small bracket, keeping the
	// best point seen.
	candidates := []float64{lo, (lo + hi) / 2, hi, c, d}
	for _, logA := range candidates {
		amount, out, gasEst, profit, ok := profitAt(logA)
		if !ok {
			continue
		}
		if profit > bestProfit || (profit == bestProfit && (bestAmount == nil || amount.Cmp(bestAmount) < 0)) {
			bestProfit = profit
			bestAmount = amount
			bestOut = out
			bestGas = gasEst
		}
	}

	if bestAmount == nil {
		return Result{Rejected: true, RejectedReason: ErrOverflow}
	}

	in := bigIntToFloat(bestAmount)
	denom := in * r.ReferencePrice
	var profitBps float64
	if denom > 0 {
		profitBps = 10_000 * bestProfit / denom
	}

	if profitBps < cfg.MinExecutableBps {
		return Result{
			AmountIn:       bestAmount,
			AmountOut:      bestOut,
			ProfitDeltaBps: profitBps,
			Rejected:       true,
			RejectedReason: errors.New("optimizer: below minimum executable spread"),
		}
	}

	minOut := util.CalculateMinAmount(bestOut, int(cfg.MaxSlippagePct))

	return Result{
		AmountIn:       bestAmount,
		AmountOut:      bestOut,
		MinAmountOut:   minOut,
		GasEstimate:    bestGas,
		ProfitDeltaBps: profitBps,
	}
}

func gasCostInOutputUnits(gasEstimate uint64, cfg Config) float64 {
	if cfg.GasPriceWei == nil || cfg.GasTokenToOutputRate <= 0 {
		return 0
	}
	weiCost := new(big.Float).SetInt(new(big.Int).Mul(cfg.GasPriceWei, new(big.Int).SetUint64(gasEstimate)))
	ethCost := new(big.Float).Quo(weiCost, big.NewFloat(1e18))
	f, _ := ethCost.Float64()
	return f * cfg.GasTokenToOutputRate
}

func bigIntToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func floatToBigInt(f float64) *big.Int {
	if f <= 0 || !isFinite(f) {
		return big.NewInt(0)
	}
	bf := new(big.Float).SetFloat64(f)
	out, _ := bf.Int(nil)
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
