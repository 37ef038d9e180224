package execution

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/flowmint/mmagent/pkg/txlistener"
	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

var _ Adapter = (*PreconfAdapter)(nil)

// PreconfAdapter targets a fast-preconfirmation L2: simulation is always
// bypassed (a preconfirmation endpoint already guarantees sequencing), and
// Execute returns once the sequencer acknowledges the preconfirmation
// rather than waiting for a mined receipt.
type PreconfAdapter struct {
	Eth       *ethclient.Client
	Preconf   *rpc.Client
	Signer    TxSigner
	Listener  txlistener.TxListener
}

// NewPreconfAdapter dials preconfURL, the sequencer's preconfirmation
// endpoint.
func NewPreconfAdapter(ctx context.Context, eth *ethclient.Client, preconfURL string, signer TxSigner) (*PreconfAdapter, error) {
	preconf, err := rpc.DialContext(ctx, preconfURL)
	if err != nil {
		return nil, fmt.Errorf("execution: failed to dial preconfirmation endpoint %s: %w", preconfURL, err)
	}
	return &PreconfAdapter{Eth: eth, Preconf: preconf, Signer: signer, Listener: listenerFor(eth)}, nil
}

type preconfAck struct {
	Acknowledged bool   `json:"acknowledged"`
	Reason       string `json:"reason"`
}

func (a *PreconfAdapter) Execute(ctx context.Context, order mmtypes.Order) mmtypes.ExecResult {
	if order.ApproveTx != nil {
		if _, err := a.ApproveIfNeeded(ctx, order.ApproveTx); err != nil {
			return mmtypes.ExecResult{Submitted: false, Err: err}
		}
	}

	signedTx, err := sign(ctx, a.Eth, a.Signer, order.SwapTx)
	if err != nil {
		return mmtypes.ExecResult{Submitted: false, Err: err}
	}
	encoded, err := encodeRawTx(signedTx)
	if err != nil {
		return mmtypes.ExecResult{Submitted: false, Err: err}
	}

	var ack preconfAck
	if err := a.Preconf.CallContext(ctx, &ack, "sequencer_sendRawTransactionPreconf", encoded); err != nil {
		return mmtypes.ExecResult{Submitted: false, TxHash: signedTx.Hash(), Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	if !ack.Acknowledged {
		return mmtypes.ExecResult{Submitted: false, TxHash: signedTx.Hash(), Err: fmt.Errorf("execution: preconfirmation refused: %s", ack.Reason)}
	}

	return mmtypes.ExecResult{Submitted: true, Included: true, TxHash: signedTx.Hash()}
}

func (a *PreconfAdapter) ApproveIfNeeded(ctx context.Context, tx *mmtypes.PreparedTx) (common.Hash, error) {
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
	var ack preconfAck
	if err := a.Preconf.CallContext(ctx, &ack, "sequencer_sendRawTransactionPreconf", encoded); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if !ack.Acknowledged {
		return common.Hash{}, fmt.Errorf("execution: approve preconfirmation refused: %s", ack.Reason)
	}
	return signedTx.Hash(), nil
}
