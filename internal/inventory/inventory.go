// Package inventory implements the inventory/allowance manager (C4): wallet
// balances, gas-token pricing, and allowance policy against the execution
// router.
package inventory

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flowmint/mmagent/internal/priceref"
	"github.com/flowmint/mmagent/pkg/contractclient"
	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// Manager reads wallet state and enforces the configured allowance policy.
type Manager struct {
	eth             *ethclient.Client
	myAddr          common.Address
	privateKey      *ecdsa.PrivateKey
	router          common.Address
	base            common.Address
	quote           common.Address
	gasToken        common.Address
	tokenClients    map[common.Address]contractclient.ContractClient
	infiniteApprove bool

	// referenceFeed is the same quote-per-base feed C2 uses; it is reused
	// here (the websocket ticker reads a cached value; the on-chain oracle
	// provider makes one contract call per read) to derive base<->gas-token
	// and quote<->gas-token rates when the gas token coincides with one
	// side of the pair.
	referenceFeed priceref.Provider
	// gasUSDFeed prices the gas token in USD. Nil leaves GasTokenToUSD nil,
	// and the evaluator then skips every candidate because the USD floor
	// cannot be evaluated.
	gasUSDFeed priceref.Provider
}

// MaxUint256 is the conventional "infinite" ERC20 approval amount.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// New builds an inventory Manager. tokenClients must contain a
// contractclient.ContractClient bound to each of base, quote, and any token
// whose allowance will be checked. referenceFeed and gasUSDFeed may be nil;
// with a nil gasUSDFeed the evaluator skips every candidate.
func New(eth *ethclient.Client, myAddr, router, base, quote, gasToken common.Address, privateKey *ecdsa.PrivateKey, tokenClients map[common.Address]contractclient.ContractClient, infiniteApprove bool, referenceFeed, gasUSDFeed priceref.Provider) *Manager {
	return &Manager{
		eth:             eth,
		myAddr:          myAddr,
		privateKey:      privateKey,
		router:          router,
		base:            base,
		quote:           quote,
		gasToken:        gasToken,
		tokenClients:    tokenClients,
		infiniteApprove: infiniteApprove,
		referenceFeed:   referenceFeed,
		gasUSDFeed:      gasUSDFeed,
	}
}

// FetchContext captures the market context for one tick: block number, gas
// price, and the base/gas-token, quote/gas-token, and gas-token/USD
// conversion rates the evaluator needs for its USD-notional floor. A rate
// that cannot be derived is left nil rather than failing the tick; the
// evaluator treats a nil/non-positive rate as "skip this candidate", which
// is the documented behavior for an unavailable gas-token→USD source.
func (m *Manager) FetchContext(ctx context.Context, blockNumber uint64) (mmtypes.MarketContext, error) {
	gasPrice, err := m.eth.SuggestGasPrice(ctx)
	if err != nil {
		return mmtypes.MarketContext{}, fmt.Errorf("failed to fetch gas price: %w", err)
	}

	baseToGas, quoteToGas := m.conversionRates(ctx)

	return mmtypes.MarketContext{
		BlockNumber:   blockNumber,
		BaseToGas:     baseToGas,
		QuoteToGas:    quoteToGas,
		GasTokenToUSD: m.gasTokenToUSD(ctx),
		GasPrice:      gasPrice,
		CapturedAt:    time.Now(),
	}, nil
}

// conversionRates derives base->gas-token and quote->gas-token rates. When
// the gas token is one side of the pair that side's rate is the identity and
// the other is derived from the reference feed's quote-per-base price. When
// the gas token is neither base nor quote there is no configured rate
// source, so both come back nil.
func (m *Manager) conversionRates(ctx context.Context) (baseToGas, quoteToGas *big.Float) {
	one := big.NewFloat(1)
	switch {
	case m.gasToken == m.base && m.gasToken == m.quote:
		return one, one
	case m.gasToken == m.base:
		ref, err := m.referencePrice(ctx)
		if err != nil || ref <= 0 {
			return one, nil
		}
		return one, new(big.Float).Quo(one, big.NewFloat(ref))
	case m.gasToken == m.quote:
		ref, err := m.referencePrice(ctx)
		if err != nil || ref <= 0 {
			return nil, one
		}
		return big.NewFloat(ref), one
	default:
		return nil, nil
	}
}

func (m *Manager) referencePrice(ctx context.Context) (float64, error) {
	if m.referenceFeed == nil {
		return 0, fmt.Errorf("inventory: no reference feed configured")
	}
	return m.referenceFeed.FetchPrice(ctx)
}

func (m *Manager) gasTokenToUSD(ctx context.Context) *big.Float {
	if m.gasUSDFeed == nil {
		return nil
	}
	v, err := m.gasUSDFeed.FetchPrice(ctx)
	if err != nil || v <= 0 {
		return nil
	}
	return big.NewFloat(v)
}

// FetchInventory reads wallet balances, per-token allowance to the router,
// and the current nonce.
func (m *Manager) FetchInventory(ctx context.Context) (mmtypes.Inventory, error) {
	baseBalance, err := m.balanceOf(m.base)
	if err != nil {
		return mmtypes.Inventory{}, err
	}
	quoteBalance, err := m.balanceOf(m.quote)
	if err != nil {
		return mmtypes.Inventory{}, err
	}
	gasBalance, err := m.eth.BalanceAt(ctx, m.myAddr, nil)
	if err != nil {
		return mmtypes.Inventory{}, fmt.Errorf("failed to fetch gas-token balance: %w", err)
	}

	allowances := make(map[common.Address]mmtypes.AllowanceState)
	for token := range m.tokenClients {
		allowance, err := m.allowanceOf(token)
		if err != nil {
			return mmtypes.Inventory{}, err
		}
		allowances[token] = allowance
	}

	nonce, err := m.eth.PendingNonceAt(ctx, m.myAddr)
	if err != nil {
		return mmtypes.Inventory{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	return mmtypes.Inventory{
		WalletBase:  baseBalance,
		WalletQuote: quoteBalance,
		WalletGas:   gasBalance,
		Allowances:  allowances,
		LastNonce:   nonce,
	}, nil
}

func (m *Manager) balanceOf(token common.Address) (*big.Int, error) {
	client, ok := m.tokenClients[token]
	if !ok {
		return nil, fmt.Errorf("no contract client bound for token %s", token.Hex())
	}
	result, err := client.Call(&m.myAddr, "balanceOf", m.myAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", token.Hex(), err)
	}
	balance, ok := result[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf return type for %s", token.Hex())
	}
	return balance, nil
}

func (m *Manager) allowanceOf(token common.Address) (mmtypes.AllowanceState, error) {
	client, ok := m.tokenClients[token]
	if !ok {
		return mmtypes.AllowanceState{}, fmt.Errorf("no contract client bound for token %s", token.Hex())
	}
	result, err := client.Call(&m.myAddr, "allowance", m.myAddr, m.router)
	if err != nil {
		return mmtypes.AllowanceState{}, fmt.Errorf("failed to read allowance for %s: %w", token.Hex(), err)
	}
	amount, ok := result[0].(*big.Int)
	if !ok {
		return mmtypes.AllowanceState{}, fmt.Errorf("unexpected allowance return type for %s", token.Hex())
	}

	// Treat anything within half of max-uint256 as effectively infinite,
	// the same convention wallets use for "unlimited approval" display.
	half := new(big.Int).Rsh(MaxUint256, 1)
	return mmtypes.AllowanceState{Amount: amount, Infinite: amount.Cmp(half) >= 0}, nil
}

// EnsureAllowance issues an approve transaction if the current allowance for
// token doesn't cover requiredAmount. If infiniteApprove is set, the approve
// (when needed) grants MaxUint256 so subsequent trades never approve again.
// Returns the zero hash and nil error if no approval was necessary.
func (m *Manager) EnsureAllowance(token common.Address, requiredAmount *big.Int) (common.Hash, error) {
	client, ok := m.tokenClients[token]
	if !ok {
		return common.Hash{}, fmt.Errorf("no contract client bound for token %s", token.Hex())
	}

	current, err := m.allowanceOf(token)
	if err != nil {
		return common.Hash{}, err
	}
	if current.Covers(requiredAmount) {
		return common.Hash{}, nil
	}

	approveAmount := requiredAmount
	if m.infiniteApprove {
		approveAmount = MaxUint256
	}

	txHash, err := client.Send(mmtypes.Standard, nil, &m.myAddr, m.privateKey, "approve", m.router, approveAmount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to approve %s: %w", token.Hex(), err)
	}
	return txHash, nil
}
