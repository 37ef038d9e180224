// Package execution implements the execution adapter (C8): one
// implementation per target chain, all satisfying the same Execute/
// ApproveIfNeeded contract so the supervisor never branches on chain type.
package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flowmint/mmagent/pkg/txlistener"
	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// Sentinel errors distinguishing the failure taxonomy the supervisor logs
// against. No adapter retries within the same tick: reverts, timeouts and
// transport errors are all returned to the caller as they occur.
var (
	ErrReverted       = errors.New("execution: transaction reverted")
	ErrTimeout        = errors.New("execution: inclusion wait timed out")
	ErrTransport      = errors.New("execution: transport error")
	ErrBundleNotIncluded = errors.New("execution: bundle not included within retry window")
)

// Adapter is the contract every chain-specific execution policy satisfies.
type Adapter interface {
	Execute(ctx context.Context, order mmtypes.Order) mmtypes.ExecResult
	ApproveIfNeeded(ctx context.Context, tx *mmtypes.PreparedTx) (common.Hash, error)
}

// sign builds, signs, and returns a raw signed transaction from a
// PreparedTx. Shared by every adapter.
func sign(ctx context.Context, eth *ethclient.Client, signer TxSigner, tx *mmtypes.PreparedTx) (*types.Transaction, error) {
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", ErrTransport, err)
	}

	var inner types.TxData
	if tx.MaxFeePerGas != nil {
		inner = &types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     tx.Nonce,
			To:        &tx.To,
			Value:     tx.Value,
			Gas:       tx.GasLimit,
			GasFeeCap: tx.MaxFeePerGas,
			GasTipCap: tx.MaxPriorityFeePerGas,
			Data:      tx.Data,
		}
	} else {
		inner = &types.LegacyTx{
			Nonce:    tx.Nonce,
			To:       &tx.To,
			Value:    tx.Value,
			Gas:      tx.GasLimit,
			GasPrice: tx.GasPrice,
			Data:     tx.Data,
		}
	}

	signedTx, err := signer.SignTx(types.NewTx(inner), types.LatestSignerForChainID(chainID))
	if err != nil {
		return nil, fmt.Errorf("execution: failed to sign transaction: %w", err)
	}
	return signedTx, nil
}

// TxSigner abstracts raw signing so the supervisor can swap in a remote
// signer without the adapters depending on crypto/ecdsa directly.
type TxSigner interface {
	SignTx(tx *types.Transaction, signer types.Signer) (*types.Transaction, error)
}

// LocalSigner signs with an in-process private key, the default for a
// single-wallet deployment. A remote-signer TxSigner (HSM, custody API) can
// be substituted without touching any adapter.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

// NewLocalSigner wraps key for use as a TxSigner.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

func (s *LocalSigner) SignTx(tx *types.Transaction, signer types.Signer) (*types.Transaction, error) {
	return types.SignTx(tx, signer, s.key)
}

// gasLedgerFromReceipt converts a mined receipt into one GasLedgerEntry.
func gasLedgerFromReceipt(receipt *mmtypes.TxReceipt, operation string) []mmtypes.GasLedgerEntry {
	if receipt == nil {
		return nil
	}
	return []mmtypes.GasLedgerEntry{{
		TxHash:    receipt.TxHash,
		Timestamp: time.Now(),
		Operation: operation,
	}}
}

// classifyReceipt reports whether the mined receipt represents a revert.
func classifyReceipt(receipt *mmtypes.TxReceipt) error {
	if receipt != nil && receipt.Status == 0 {
		return ErrReverted
	}
	return nil
}

// listenerFor returns a sensible default tx listener bound to eth, matching
// the 3s/5m polling convention used across the agent.
func listenerFor(eth *ethclient.Client) txlistener.TxListener {
	return txlistener.NewTxListener(eth)
}
