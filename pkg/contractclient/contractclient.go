// Package contractclient wraps a single deployed contract (address + ABI)
// behind a small read/write/decode surface so the rest of the agent never
// touches go-ethereum's bind package directly.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// ContractClient is satisfied by a client bound to one contract address and
// ABI. Call performs eth_call; Send signs and broadcasts a state-changing
// transaction.
type ContractClient interface {
	Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error)
	Send(txType mmtypes.TxType, gasLimit *uint64, from *common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
	Abi() abi.ABI
	ParseReceipt(receipt *mmtypes.TxReceipt) (string, error)
	ContractAddress() common.Address
	TransactionData(hash common.Hash) ([]byte, error)
	DecodeTransaction(data []byte) (interface{}, error)
}

type client struct {
	eth     *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewContractClient binds a client to one contract's address and ABI.
func NewContractClient(eth *ethclient.Client, address common.Address, contractAbi abi.ABI) ContractClient {
	return &client{eth: eth, address: address, abi: contractAbi}
}

func (c *client) Abi() abi.ABI {
	return c.abi
}

func (c *client) ContractAddress() common.Address {
	return c.address
}

// Call performs a read-only eth_call against method, decoding the ABI's
// declared outputs into a slice in declaration order.
func (c *client) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call to %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &c.address, Data: input}
	if from != nil {
		msg.From = *from
	}

	output, err := c.eth.CallContract(context.Background(), msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call to %s reverted: %w", method, err)
	}

	values, err := c.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result of %s: %w", method, err)
	}
	return values, nil
}

// Send packs method/args, signs with privateKey, and broadcasts the
// transaction. gasLimit nil triggers automatic estimation.
func (c *client) Send(txType mmtypes.TxType, gasLimit *uint64, from *common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
	if from == nil {
		return common.Hash{}, fmt.Errorf("from address required")
	}

	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack send to %s: %w", method, err)
	}

	ctx := context.Background()

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, *from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}

	limit := uint64(0)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		estimated, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: *from, To: &c.address, Data: input})
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas for %s: %w", method, err)
		}
		limit = estimated + estimated/5 // 20% buffer
	}

	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch gas tip cap: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch head for base fee: %w", err)
	}

	var baseFee *big.Int
	if head.BaseFee != nil {
		baseFee = head.BaseFee
	} else {
		baseFee = big.NewInt(0)
	}
	feeCap := new(big.Int).Add(baseFee, baseFee)
	feeCap.Add(feeCap, tip)

	var tx *types.Transaction
	switch txType {
	case mmtypes.Legacy:
		gasPrice, err := c.eth.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &c.address,
			Value:    big.NewInt(0),
			Gas:      limit,
			GasPrice: gasPrice,
			Data:     input,
		})
	default:
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			To:        &c.address,
			Value:     big.NewInt(0),
			Gas:       limit,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Data:      input,
		})
	}

	signer := types.LatestSignerForChainID(chainID)
	signedTx, err := types.SignTx(tx, signer, privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast %s: %w", method, err)
	}

	return signedTx.Hash(), nil
}

// TransactionData fetches the calldata of a mined or pending transaction.
func (c *client) TransactionData(hash common.Hash) ([]byte, error) {
	tx, _, err := c.eth.TransactionByHash(context.Background(), hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", hash.Hex(), err)
	}
	return tx.Data(), nil
}

// decodedCall is the JSON shape returned by DecodeTransaction.
type decodedCall struct {
	MethodName string                 `json:"methodName"`
	Parameter  map[string]interface{} `json:"parameter"`
}

// DecodeTransaction matches calldata's 4-byte selector against the bound
// ABI and unpacks the arguments into a name-keyed map.
func (c *client) DecodeTransaction(data []byte) (interface{}, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short to contain a selector")
	}

	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("failed to resolve method selector: %w", err)
	}

	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("failed to unpack calldata for %s: %w", method.Name, err)
	}

	return decodedCall{MethodName: method.Name, Parameter: args}, nil
}

// parsedEvent is one emitted log, decoded into its event name and
// name-keyed parameters, for downstream JSON consumers (e.g. extracting a
// minted NFT id from a Transfer event).
type parsedEvent struct {
	EventName string                 `json:"EventName"`
	Parameter map[string]interface{} `json:"Parameter"`
}

// ParseReceipt decodes every log in receipt that matches an event in the
// bound ABI into a JSON array of {EventName, Parameter}.
func (c *client) ParseReceipt(receipt *mmtypes.TxReceipt) (string, error) {
	if receipt == nil {
		return "", fmt.Errorf("nil receipt")
	}

	var rawLogs []*types.Log
	if len(receipt.Logs) > 0 {
		if err := json.Unmarshal(receipt.Logs, &rawLogs); err != nil {
			return "", fmt.Errorf("failed to unmarshal receipt logs: %w", err)
		}
	}

	events := make([]parsedEvent, 0, len(rawLogs))
	for _, l := range rawLogs {
		if l == nil || len(l.Topics) == 0 {
			continue
		}
		ev, err := c.abi.EventByID(l.Topics[0])
		if err != nil {
			continue // not an event from this contract's ABI
		}

		args := make(map[string]interface{})
		if len(l.Data) > 0 {
			if err := ev.Inputs.UnpackIntoMap(args, l.Data); err != nil {
				continue
			}
		}
		indexed := 0
		for _, input := range ev.Inputs {
			if !input.Indexed {
				continue
			}
			indexed++
			if indexed >= len(l.Topics) {
				break
			}
			if strings.EqualFold(input.Type.String(), "address") {
				args[input.Name] = common.HexToAddress(l.Topics[indexed].Hex()).Hex()
			} else {
				args[input.Name] = l.Topics[indexed].Hex()
			}
		}

		events = append(events, parsedEvent{EventName: ev.Name, Parameter: args})
	}

	out, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parsed events: %w", err)
	}
	return string(out), nil
}
