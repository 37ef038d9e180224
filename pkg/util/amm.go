// Package util holds the concentrated-liquidity tick math and small numeric
// helpers used by the evaluator and optimizer. Tick
// math and crypto/ABI helpers live together here in one utility package
// (see DESIGN.md).
package util

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// TickToSqrtPriceX96 converts a tick index to its Q96 fixed-point sqrt price,
// following the 1.0001^(tick/2) formula used by concentrated-liquidity pools.
func TickToSqrtPriceX96(tick int) *big.Int {
	ratio := math.Pow(1.0001, float64(tick)/2)
	sqrtPriceFloat := new(big.Float).SetFloat64(ratio)
	sqrtPriceFloat.Mul(sqrtPriceFloat, new(big.Float).SetInt(q96))

	result := new(big.Int)
	sqrtPriceFloat.Int(result)
	return result
}

// SqrtPriceToPrice converts a Q96 sqrt price into token1-per-token0, still in
// raw (non-decimal-adjusted) units. Callers multiply by 10^(dec0-dec1) to
// reach a human price.
func SqrtPriceToPrice(sqrtPriceX96 *big.Int) *big.Float {
	sqrtPrice := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(q96))
	return new(big.Float).Mul(sqrtPrice, sqrtPrice)
}

// CalculateTickBounds derives a symmetric [lower, upper] tick range around
// currentTick, rangeWidth spacings wide on each side, rounded to the pool's
// tickSpacing grid.
func CalculateTickBounds(currentTick int32, rangeWidth, tickSpacing int) (int32, int32, error) {
	if tickSpacing <= 0 {
		return 0, 0, errors.New("tickSpacing must be positive")
	}
	if rangeWidth <= 0 {
		return 0, 0, errors.New("rangeWidth must be positive")
	}

	spacing := int32(tickSpacing)
	halfRange := int32(rangeWidth) * spacing

	rounded := (currentTick / spacing) * spacing
	if currentTick < 0 && currentTick%spacing != 0 {
		rounded -= spacing
	}

	lower := rounded - halfRange
	upper := rounded + halfRange
	if lower >= upper {
		return 0, 0, fmt.Errorf("degenerate tick range: lower=%d upper=%d", lower, upper)
	}
	return lower, upper, nil
}

// ComputeAmounts computes the token0/token1 amounts and resulting liquidity
// for depositing up to amount0Max/amount1Max into [tickLower, tickUpper] at
// the pool's current sqrtPriceX96/tick, following the standard Uniswap-v3
// style three-region liquidity formula (below range, in range, above range).
func ComputeAmounts(sqrtPriceX96 *big.Int, tick, tickLower, tickUpper int, amount0Max, amount1Max *big.Int) (*big.Int, *big.Int, *big.Int) {
	sqrtLower := TickToSqrtPriceX96(tickLower)
	sqrtUpper := TickToSqrtPriceX96(tickUpper)
	sqrtCurrent := sqrtPriceX96
	if tick <= tickLower {
		sqrtCurrent = sqrtLower
	} else if tick >= tickUpper {
		sqrtCurrent = sqrtUpper
	}

	var liquidity0, liquidity1 *big.Int

	if tick < tickUpper {
		liquidity0 = liquidityForAmount0(sqrtCurrent, sqrtUpper, amount0Max)
	}
	if tick > tickLower {
		liquidity1 = liquidityForAmount1(sqrtLower, sqrtCurrent, amount1Max)
	}

	var liquidity *big.Int
	switch {
	case tick <= tickLower:
		liquidity = liquidity0
	case tick >= tickUpper:
		liquidity = liquidity1
	default:
		if liquidity0 == nil {
			liquidity = liquidity1
		} else if liquidity1 == nil {
			liquidity = liquidity0
		} else if liquidity0.Cmp(liquidity1) < 0 {
			liquidity = liquidity0
		} else {
			liquidity = liquidity1
		}
	}
	if liquidity == nil {
		liquidity = big.NewInt(0)
	}

	amount0, amount1, err := CalculateTokenAmountsFromLiquidity(liquidity, sqrtPriceX96, int32(tickLower), int32(tickUpper))
	if err != nil {
		return big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	return amount0, amount1, liquidity
}

func liquidityForAmount0(sqrtA, sqrtB *big.Int, amount0 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	intermediate := new(big.Int).Mul(sqrtA, sqrtB)
	intermediate.Div(intermediate, q96)
	numerator := new(big.Int).Mul(amount0, intermediate)
	denom := new(big.Int).Sub(sqrtB, sqrtA)
	if denom.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Div(numerator, denom)
}

func liquidityForAmount1(sqrtA, sqrtB *big.Int, amount1 *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	denom := new(big.Int).Sub(sqrtB, sqrtA)
	if denom.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(amount1, q96)
	return new(big.Int).Div(numerator, denom)
}

// CalculateTokenAmountsFromLiquidity computes the token0/token1 amounts
// locked in a position of the given liquidity, evaluated at sqrtPriceX96.
func CalculateTokenAmountsFromLiquidity(liquidity, sqrtPriceX96 *big.Int, tickLower, tickUpper int32) (*big.Int, *big.Int, error) {
	if liquidity == nil || liquidity.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if tickLower >= tickUpper {
		return nil, nil, errors.New("tickLower must be less than tickUpper")
	}

	sqrtLower := TickToSqrtPriceX96(int(tickLower))
	sqrtUpper := TickToSqrtPriceX96(int(tickUpper))
	sqrtCurrent := sqrtPriceX96

	var amount0, amount1 *big.Int

	switch {
	case sqrtCurrent.Cmp(sqrtLower) <= 0:
		amount0 = amount0FromLiquidity(liquidity, sqrtLower, sqrtUpper)
		amount1 = big.NewInt(0)
	case sqrtCurrent.Cmp(sqrtUpper) >= 0:
		amount0 = big.NewInt(0)
		amount1 = amount1FromLiquidity(liquidity, sqrtLower, sqrtUpper)
	default:
		amount0 = amount0FromLiquidity(liquidity, sqrtCurrent, sqrtUpper)
		amount1 = amount1FromLiquidity(liquidity, sqrtLower, sqrtCurrent)
	}

	return amount0, amount1, nil
}

func amount0FromLiquidity(liquidity, sqrtA, sqrtB *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	denom := new(big.Int).Mul(sqrtA, sqrtB)
	denom.Div(denom, q96)
	if denom.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(liquidity, q96)
	numerator.Mul(numerator, new(big.Int).Sub(sqrtB, sqrtA))
	return numerator.Div(numerator, denom)
}

func amount1FromLiquidity(liquidity, sqrtA, sqrtB *big.Int) *big.Int {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	numerator := new(big.Int).Mul(liquidity, new(big.Int).Sub(sqrtB, sqrtA))
	return numerator.Div(numerator, q96)
}

// CalculateRebalanceAmounts decides, given wallet balances and the current
// sqrt price, which side of the pair is overweight: returns 0 if token0 (base)
// should be sold into token1, 1 if token1 (quote) should be sold into token0,
// along with the amount of the overweight token to move to restore a 50/50
// USD split.
func CalculateRebalanceAmounts(balance0, balance1 *big.Int, sqrtPriceX96 *big.Int) (int, *big.Int, error) {
	if balance0 == nil || balance1 == nil || sqrtPriceX96 == nil {
		return 0, nil, errors.New("nil input")
	}

	price := SqrtPriceToPrice(sqrtPriceX96) // token1 per token0, raw units

	value0 := new(big.Float).Mul(new(big.Float).SetInt(balance0), price)
	value1 := new(big.Float).SetInt(balance1)

	total := new(big.Float).Add(value0, value1)
	half := new(big.Float).Quo(total, big.NewFloat(2))

	if value0.Cmp(half) > 0 {
		excessValue := new(big.Float).Sub(value0, half)
		amount0 := new(big.Float).Quo(excessValue, price)
		swapAmount := new(big.Int)
		amount0.Int(swapAmount)
		return 0, swapAmount, nil
	}

	excessValue := new(big.Float).Sub(value1, half)
	swapAmount := new(big.Int)
	excessValue.Int(swapAmount)
	return 1, swapAmount, nil
}

// CalculateMinAmount applies a slippage tolerance (percent, e.g. 5 for 5%)
// to a desired amount, rounding down.
func CalculateMinAmount(desired *big.Int, slippagePct int) *big.Int {
	if desired == nil {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(desired, big.NewInt(int64(100-slippagePct)))
	return numerator.Div(numerator, big.NewInt(100))
}

// BpsBetween computes 10_000 * (a - b) / b, the signed deviation of a from b
// in basis points. Used by the evaluator for spread_bps.
func BpsBetween(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return 10_000 * (a - b) / b
}
