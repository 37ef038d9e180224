package execution

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/flowmint/mmagent/pkg/txlistener"
	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

var _ Adapter = (*PrivateRelayAdapter)(nil)

// PrivateRelayAdapter submits a signed transaction as a single-tx bundle to
// a private relay (mainnet-like chains with a public mempool), targeting
// current_block + InclusionBlockDelay and retrying for MaxRetryBlocks before
// giving up and discarding as a non-fatal miss.
type PrivateRelayAdapter struct {
	Eth                 *ethclient.Client
	Relay               *rpc.Client
	Signer              TxSigner
	Listener            txlistener.TxListener
	InclusionBlockDelay uint64
	MaxRetryBlocks      uint64
}

// NewPrivateRelayAdapter constructs an adapter targeting relayURL over
// JSON-RPC (e.g. a Flashbots-style eth_sendBundle endpoint).
func NewPrivateRelayAdapter(ctx context.Context, eth *ethclient.Client, relayURL string, signer TxSigner, inclusionBlockDelay, maxRetryBlocks uint64) (*PrivateRelayAdapter, error) {
	relay, err := rpc.DialContext(ctx, relayURL)
	if err != nil {
		return nil, fmt.Errorf("execution: failed to dial relay %s: %w", relayURL, err)
	}
	return &PrivateRelayAdapter{
		Eth:                 eth,
		Relay:               relay,
		Signer:              signer,
		Listener:            listenerFor(eth),
		InclusionBlockDelay: inclusionBlockDelay,
		MaxRetryBlocks:      maxRetryBlocks,
	}, nil
}

type bundleParams struct {
	Txs         []string `json:"txs"`
	BlockNumber string   `json:"blockNumber"`
}

func (a *PrivateRelayAdapter) Execute(ctx context.Context, order mmtypes.Order) mmtypes.ExecResult {
	var rawTxs []string
	var toWatch []common.Hash

	if order.ApproveTx != nil {
		signed, err := sign(ctx, a.Eth, a.Signer, order.ApproveTx)
		if err != nil {
			return mmtypes.ExecResult{Submitted: false, Err: err}
		}
		encoded, err := encodeRawTx(signed)
		if err != nil {
			return mmtypes.ExecResult{Submitted: false, Err: err}
		}
		rawTxs = append(rawTxs, encoded)
		toWatch = append(toWatch, signed.Hash())
	}

	signedSwap, err := sign(ctx, a.Eth, a.Signer, order.SwapTx)
	if err != nil {
		return mmtypes.ExecResult{Submitted: false, Err: err}
	}
	encodedSwap, err := encodeRawTx(signedSwap)
	if err != nil {
		return mmtypes.ExecResult{Submitted: false, Err: err}
	}
	rawTxs = append(rawTxs, encodedSwap)
	toWatch = append(toWatch, signedSwap.Hash())

	head, err := a.Eth.BlockNumber(ctx)
	if err != nil {
		return mmtypes.ExecResult{Submitted: false, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}

	for attempt := uint64(0); attempt <= a.MaxRetryBlocks; attempt++ {
		target := head + a.InclusionBlockDelay + attempt
		params := bundleParams{Txs: rawTxs, BlockNumber: hexutil.EncodeUint64(target)}
		if err := a.Relay.CallContext(ctx, nil, "eth_sendBundle", params); err != nil {
			return mmtypes.ExecResult{Submitted: false, Err: fmt.Errorf("%w: %v", ErrTransport, err)}
		}

		receipt, err := a.Listener.WaitForTransactionContext(ctx, signedSwap.Hash())
		if err == nil {
			if revertErr := classifyReceipt(receipt); revertErr != nil {
				return mmtypes.ExecResult{Submitted: true, Included: true, TxHash: signedSwap.Hash(), Err: revertErr, Ledger: gasLedgerFromReceipt(receipt, "swap")}
			}
			return mmtypes.ExecResult{Submitted: true, Included: true, TxHash: signedSwap.Hash(), Ledger: gasLedgerFromReceipt(receipt, "swap")}
		}
	}

	// Bundle missed every targeted block; a non-fatal miss, not a revert.
	return mmtypes.ExecResult{Submitted: true, Included: false, TxHash: signedSwap.Hash(), Err: ErrBundleNotIncluded}
}

func (a *PrivateRelayAdapter) ApproveIfNeeded(ctx context.Context, tx *mmtypes.PreparedTx) (common.Hash, error) {
	if tx == nil {
		return common.Hash{}, nil
	}
	signedTx, err := sign(ctx, a.Eth, a.Signer, tx)
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := encodeRawTx(signedTx)
	if err != nil {
		return common.Hash{}, err
	}
	head, err := a.Eth.BlockNumber(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	params := bundleParams{Txs: []string{encoded}, BlockNumber: hexutil.EncodeUint64(head + a.InclusionBlockDelay)}
	if err := a.Relay.CallContext(ctx, nil, "eth_sendBundle", params); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return signedTx.Hash(), nil
}

func encodeRawTx(tx *types.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("execution: failed to encode raw transaction: %w", err)
	}
	return hexutil.Encode(raw), nil
}
