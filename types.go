package blackholedex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Route represents a single swap hop in the router's route array.
// Matches the Solidity struct IRouter.route.
type Route struct {
	Pair         common.Address `json:"pair"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	Stable       bool           `json:"stable"`
	Concentrated bool           `json:"concentrated"`
	Receiver     common.Address `json:"receiver"`
}

// SWAPExactETHForTokensParams represents parameters for swapExactETHForTokens.
type SWAPExactETHForTokensParams struct {
	AmountOutMin *big.Int       `json:"amountOutMin"`
	Routes       []Route        `json:"routes"`
	To           common.Address `json:"to"`
	Deadline     *big.Int       `json:"deadline"`
}

// SWAPExactTokensForTokensParams represents parameters for swapExactTokensForTokens.
type SWAPExactTokensForTokensParams struct {
	AmountIn     *big.Int       `json:"amountIn"`
	AmountOutMin *big.Int       `json:"amountOutMin"`
	Routes       []Route        `json:"routes"`
	To           common.Address `json:"to"`
	Deadline     *big.Int       `json:"deadline"`
}
