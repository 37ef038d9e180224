package execution

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/flowmint/mmagent/pkg/txlistener"
	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

var _ Adapter = (*PublicRPCAdapter)(nil)

// PublicRPCAdapter broadcasts directly to a public RPC endpoint and waits
// for the receipt until the caller's context ends; the wait is not counted
// in blocks, and InclusionBlockDelay is stored but not read. Optionally
// pre-simulates against the RPC before broadcast unless SkipSimulation is
// set.
type PublicRPCAdapter struct {
	Eth                 *ethclient.Client
	Signer              TxSigner
	Listener            txlistener.TxListener
	InclusionBlockDelay uint64
	SkipSimulation      bool
}

// NewPublicRPCAdapter constructs an adapter with the default tx listener.
func NewPublicRPCAdapter(eth *ethclient.Client, signer TxSigner, inclusionBlockDelay uint64, skipSimulation bool) *PublicRPCAdapter {
	return &PublicRPCAdapter{
		Eth:                 eth,
		Signer:              signer,
		Listener:            listenerFor(eth),
		InclusionBlockDelay: inclusionBlockDelay,
		SkipSimulation:      skipSimulation,
	}
}

func (a *PublicRPCAdapter) Execute(ctx context.Context, order mmtypes.Order) mmtypes.ExecResult {
	if order.ApproveTx != nil {
		if _, err := a.ApproveIfNeeded(ctx, order.ApproveTx); err != nil {
			return mmtypes.ExecResult{Submitted: false, Err: err}
		}
	}

	if !a.SkipSimulation {
		if err := a.preSimulate(ctx, order.SwapTx); err != nil {
			return mmtypes.ExecResult{Submitted: false, Err: fmt.Errorf("%w: %v", ErrReverted, err)}
		}
	}

	signedTx, err := sign(ctx, a.Eth, a.Signer, order.SwapTx)
	if err != nil {
		return mmtypes.ExecResult{Submitted: false, Err: err}
	}

	if err := a.Eth.SendTransaction(ctx, signedTx); err != nil {
		return mmtypes.ExecResult{Submitted: false, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}

	receipt, err := a.Listener.WaitForTransactionContext(ctx, signedTx.Hash())
	if err != nil {
		return mmtypes.ExecResult{Submitted: true, TxHash: signedTx.Hash(), Err: fmt.Errorf("%w: %v", ErrTimeout, err)}
	}

	if revertErr := classifyReceipt(receipt); revertErr != nil {
		return mmtypes.ExecResult{Submitted: true, Included: true, TxHash: signedTx.Hash(), Err: revertErr, Ledger: gasLedgerFromReceipt(receipt, "swap")}
	}

	return mmtypes.ExecResult{Submitted: true, Included: true, TxHash: signedTx.Hash(), Ledger: gasLedgerFromReceipt(receipt, "swap")}
}

func (a *PublicRPCAdapter) ApproveIfNeeded(ctx context.Context, tx *mmtypes.PreparedTx) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, nil
	}
	signedTx, err := sign(ctx, a.Eth, a.Signer, tx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.Eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if _, err := a.Listener.WaitForTransactionContext(ctx, signedTx.Hash()); err != nil {
		return signedTx.Hash(), fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return signedTx.Hash(), nil
}

// preSimulate replays the swap calldata via eth_call before broadcasting,
// surfacing a revert without spending gas.
func (a *PublicRPCAdapter) preSimulate(ctx context.Context, tx *mmtypes.PreparedTx) error {
	if tx == nil {
		return nil
	}
	_, err := a.Eth.CallContract(ctx, callMsgFrom(tx), nil)
	return err
}
