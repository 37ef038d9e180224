// Package types holds the data model shared by every component of the
// market-making agent: tokens, pairs, pool components, market context,
// inventory, and the Readjustment/Order values that flow through one
// evaluation tick.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes an ERC20 (or native gas) asset.
type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Side is the direction of a swap, always expressed against the pair's base
// token: BUY acquires base with quote, SELL disposes of base for quote.
type Side int

const (
	SELL Side = iota
	BUY
)

func (s Side) String() string {
	if s == BUY {
		return "BUY"
	}
	return "SELL"
}

// Pair is the configured trading pair for one running instance. Immutable
// after startup.
type Pair struct {
	Tag       string // configured pair tag, e.g. "wavax-usdc"
	Base      Token
	Quote     Token
	GasToken  Token
	FeeOnBase bool // true if the pool captures its fee on the base-token leg
}

// ComponentID identifies a liquidity pool uniquely within a protocol's
// namespace. It is opaque to the agent beyond equality/ordering.
type ComponentID string

// Component is a single liquidity pool tracked by the protocol cache.
// It is created when first observed in the stream, mutated only by stream
// deltas, and retired when the stream declares removal.
type Component struct {
	ID         ComponentID
	Protocol   string
	Tokens     []common.Address // superset check: must contain {base, quote}
	StaticAttr map[string]string
	Balances   map[common.Address]*big.Int // last-known token balances
}

// HasToken reports whether the component's token set contains addr.
func (c *Component) HasToken(addr common.Address) bool {
	for _, t := range c.Tokens {
		if t == addr {
			return true
		}
	}
	return false
}

// MarketContext is captured once per evaluation tick and lives for that
// tick only.
type MarketContext struct {
	BlockNumber    uint64
	BaseToGas      *big.Float // base -> gas-token rate
	QuoteToGas     *big.Float // quote -> gas-token rate
	GasTokenToUSD  *big.Float
	GasPrice       *big.Int
	CapturedAt     time.Time
}

// AllowanceState is an ERC20/Permit2 grant: either a finite amount or the
// "infinite" sentinel (MaxUint256, tracked as a bool here to avoid giant
// comparisons on the hot path).
type AllowanceState struct {
	Amount   *big.Int
	Infinite bool
}

// Covers reports whether the allowance covers amount.
func (a AllowanceState) Covers(amount *big.Int) bool {
	if a.Infinite {
		return true
	}
	if a.Amount == nil {
		return false
	}
	return a.Amount.Cmp(amount) >= 0
}

// Inventory is refreshed once per tick: wallet balances, allowance state per
// token, and the last nonce observed on-chain.
type Inventory struct {
	WalletBase  *big.Int
	WalletQuote *big.Int
	WalletGas   *big.Int
	Allowances  map[common.Address]AllowanceState // token -> grant to the router
	LastNonce   uint64
	CapturedAt  time.Time
}

// Readjustment is a structured opportunity identified by the evaluator.
// Valid only within the block it was captured in.
type Readjustment struct {
	Component      *Component
	Side           Side
	SpreadBps      float64
	ReferencePrice float64 // quote-per-base, at capture
	BlockNumber    uint64
}

// Order is a realizable trade candidate: created in a tick, consumed by the
// execution adapter within the same tick, then discarded.
type Order struct {
	Component        *Component
	Side             Side
	AmountIn         *big.Int
	ExpectedAmountOut *big.Int
	MinAmountOut     *big.Int
	GasEstimate      uint64
	ProfitBps        float64
	Deadline         *big.Int

	ApproveTx *PreparedTx // optional, nil if allowance already sufficient
	SwapTx    *PreparedTx

	BlockNumber uint64
}

// PreparedTx is calldata ready for signing and submission, built by the
// order builder (C7) and consumed by the execution adapter (C8).
type PreparedTx struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Nonce    uint64
	GasLimit uint64

	// EIP-1559 fee fields; GasPrice is used instead for legacy/bundle
	// submission policies.
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	GasPrice             *big.Int
}

// GasLedgerEntry tracks the gas spent on one transaction within an Order's
// lifecycle.
type GasLedgerEntry struct {
	TxHash    common.Hash
	GasUsed   uint64
	GasPrice  *big.Int
	GasCost   *big.Int
	Timestamp time.Time
	Operation string
}

// ExecResult is what an execution adapter (C8) returns for a submitted
// Order.
type ExecResult struct {
	Submitted bool
	Included  bool
	TxHash    common.Hash
	Err       error
	Ledger    []GasLedgerEntry
}

// TxType selects the fee/submission policy a ContractClient.Send call should
// build calldata under. Standard lets the client pick EIP-1559 fields from
// the chain's suggested gas tip; the execution adapters (C8) override this
// per chain.
type TxType int

const (
	Standard TxType = iota
	Legacy
	Bundle
)

// TxReceipt is the listener's normalized view of a mined transaction,
// independent of go-ethereum's wire representation so callers need not
// import it to read gas accounting.
type TxReceipt struct {
	TxHash            common.Hash
	Status            uint64
	GasUsed           string
	EffectiveGasPrice string
	BlockNumber       uint64
	Logs              []byte // raw JSON-encoded logs, decoded by ContractClient.ParseReceipt
}

// SimResult is what ProtocolState.GetAmountOut returns: the quoted output
// amount, the resulting state had the swap actually been applied (never
// promoted unless the caller chooses to), and a gas estimate for the swap.
type SimResult struct {
	AmountOut   *big.Int
	NewState    ProtocolState
	GasEstimate uint64
}

// ProtocolState is the opaque per-component simulation state a protocol
// adapter (e.g. a concentrated-liquidity pool) implements. Simulating a
// swap must never mutate the receiver; SimResult.NewState is a separate
// value the caller may discard or promote into the cache.
type ProtocolState interface {
	SpotPrice(tokenA, tokenB common.Address) (float64, error)
	GetAmountOut(amountIn *big.Int, tokenIn, tokenOut common.Address) (SimResult, error)
	Clone() ProtocolState
}
