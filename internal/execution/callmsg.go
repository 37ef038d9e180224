package execution

import (
	ethereum "github.com/ethereum/go-ethereum"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// callMsgFrom builds a read-only eth_call message replaying a prepared
// transaction's calldata, for pre-broadcast revert simulation.
func callMsgFrom(tx *mmtypes.PreparedTx) ethereum.CallMsg {
	return ethereum.CallMsg{
		To:   &tx.To,
		Data: tx.Data,
	}
}
