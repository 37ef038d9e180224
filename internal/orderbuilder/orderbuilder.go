// Package orderbuilder implements the order builder (C7): turns an
// optimizer result into an ordered list of transactions ready for
// execution — an optional approve, then the swap — with nonce, gas fields,
// min_amount_out, and deadline attached.
package orderbuilder

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// RouterBinding is the subset of contractclient.ContractClient the order
// builder needs to pack calldata without signing or broadcasting it.
type RouterBinding interface {
	Abi() abi.ABI
	ContractAddress() common.Address
}

// SwapArgsFunc builds the positional arguments for the router's swap method
// from a realized trade. Protocol-specific: e.g. a Uniswap-V2-style router
// takes (amountIn, amountOutMin, path, to, deadline); a single-pool router
// might take (amountIn, amountOutMin, sqrtPriceLimit, to, deadline).
type SwapArgsFunc func(amountIn, minAmountOut *big.Int, to common.Address, deadline *big.Int) []interface{}

// GasPolicy supplies the fee fields for a chain. EIP-1559 chains populate
// MaxFeePerGas/MaxPriorityFeePerGas; legacy/bundle chains populate GasPrice.
type GasPolicy struct {
	TxType               mmtypes.TxType
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
	TxGasLimit           uint64 // cap; if the estimate exceeds it, the order is rejected
}

// Params is everything the builder needs for one candidate trade.
type Params struct {
	Component       *mmtypes.Component
	Side            mmtypes.Side
	Router          RouterBinding
	SwapMethod      string
	SwapArgs        SwapArgsFunc
	TokenIn         common.Address
	AmountIn        *big.Int
	AmountOut       *big.Int
	MinAmountOut    *big.Int
	GasEstimate     uint64
	ProfitBps       float64
	BlockNumber     uint64
	BlockTime       time.Time
	DeadlineDelta   time.Duration
	Nonce           uint64
	NeedsApproval   bool
	ApproveRouter   RouterBinding
	ApproveSpender  common.Address
	ApproveAmount   *big.Int
	Gas             GasPolicy
}

// Build assembles the final Order. Build assigns nonces strictly
// monotonically from p.Nonce across the optional approve tx and the swap:
// approve consumes
// p.Nonce, the swap consumes p.Nonce+1 if an approval was prepended.
func Build(p Params) (mmtypes.Order, error) {
	if p.GasEstimate > 0 && p.Gas.TxGasLimit > 0 && p.GasEstimate > p.Gas.TxGasLimit {
		return mmtypes.Order{}, fmt.Errorf("orderbuilder: gas estimate %d exceeds tx_gas_limit %d", p.GasEstimate, p.Gas.TxGasLimit)
	}

	deadline := big.NewInt(p.BlockTime.Add(p.DeadlineDelta).Unix())

	swapArgs := p.SwapArgs(p.AmountIn, p.MinAmountOut, p.Router.ContractAddress(), deadline)
	swapData, err := p.Router.Abi().Pack(p.SwapMethod, swapArgs...)
	if err != nil {
		return mmtypes.Order{}, fmt.Errorf("orderbuilder: failed to pack %s: %w", p.SwapMethod, err)
	}

	nonce := p.Nonce
	var approveTx *mmtypes.PreparedTx
	if p.NeedsApproval {
		approveData, err := p.ApproveRouter.Abi().Pack("approve", p.ApproveSpender, p.ApproveAmount)
		if err != nil {
			return mmtypes.Order{}, fmt.Errorf("orderbuilder: failed to pack approve: %w", err)
		}
		approveTx = preparedTx(p.ApproveRouter.ContractAddress(), approveData, nonce, p.Gas)
		nonce++
	}

	swapTx := preparedTx(p.Router.ContractAddress(), swapData, nonce, p.Gas)

	return mmtypes.Order{
		Component:         p.Component,
		Side:              p.Side,
		AmountIn:          p.AmountIn,
		ExpectedAmountOut: p.AmountOut,
		MinAmountOut:      p.MinAmountOut,
		GasEstimate:       p.GasEstimate,
		ProfitBps:         p.ProfitBps,
		Deadline:          deadline,
		ApproveTx:         approveTx,
		SwapTx:            swapTx,
		BlockNumber:       p.BlockNumber,
	}, nil
}

func preparedTx(to common.Address, data []byte, nonce uint64, gas GasPolicy) *mmtypes.PreparedTx {
	return &mmtypes.PreparedTx{
		To:                   to,
		Data:                 data,
		Value:                big.NewInt(0),
		Nonce:                nonce,
		GasLimit:             gas.TxGasLimit,
		MaxFeePerGas:         gas.MaxFeePerGas,
		MaxPriorityFeePerGas: gas.MaxPriorityFeePerGas,
		GasPrice:             gas.GasPrice,
	}
}
