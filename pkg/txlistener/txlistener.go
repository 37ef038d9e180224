// Package txlistener polls for transaction receipts and normalizes them
// into the mmagent/pkg/types.TxReceipt shape, independent of the go-ethereum
// receipt representation.
package txlistener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flowmint/mmagent/pkg/types"
)

// TxListener waits for a submitted transaction to be mined.
type TxListener interface {
	WaitForTransaction(hash common.Hash) (*types.TxReceipt, error)
	WaitForTransactionContext(ctx context.Context, hash common.Hash) (*types.TxReceipt, error)
}

type listener struct {
	eth          *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener at construction.
type Option func(*listener)

// WithPollInterval sets how often the listener polls for a receipt.
func WithPollInterval(d time.Duration) Option {
	return func(l *listener) { l.pollInterval = d }
}

// WithTimeout bounds how long WaitForTransaction waits before giving up.
func WithTimeout(d time.Duration) Option {
	return func(l *listener) { l.timeout = d }
}

// NewTxListener builds a TxListener against eth, with sane defaults
// (3s poll, 5m timeout) overridable via options.
func NewTxListener(eth *ethclient.Client, opts ...Option) TxListener {
	l := &listener{
		eth:          eth,
		pollInterval: 3 * time.Second,
		timeout:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks, polling at pollInterval, until hash is mined or
// the configured timeout elapses.
func (l *listener) WaitForTransaction(hash common.Hash) (*types.TxReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.WaitForTransactionContext(ctx, hash)
}

// WaitForTransactionContext is WaitForTransaction with caller-supplied
// cancellation, used by the execution adapters to bound inclusion waits by
// the caller's context rather than the listener's own default timeout.
func (l *listener) WaitForTransactionContext(ctx context.Context, hash common.Hash) (*types.TxReceipt, error) {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return normalizeReceipt(receipt)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for transaction %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func normalizeReceipt(r *gethtypes.Receipt) (*types.TxReceipt, error) {
	logsJSON, err := json.Marshal(r.Logs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt logs: %w", err)
	}

	effectiveGasPrice := "0"
	if r.EffectiveGasPrice != nil {
		effectiveGasPrice = r.EffectiveGasPrice.String()
	}

	return &types.TxReceipt{
		TxHash:            r.TxHash,
		Status:            r.Status,
		GasUsed:           fmt.Sprintf("%d", r.GasUsed),
		EffectiveGasPrice: effectiveGasPrice,
		BlockNumber:       r.BlockNumber.Uint64(),
		Logs:              logsJSON,
	}, nil
}
