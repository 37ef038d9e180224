package execution

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

func TestClassifyReceiptDetectsRevert(t *testing.T) {
	err := classifyReceipt(&mmtypes.TxReceipt{Status: 0})
	assert.ErrorIs(t, err, ErrReverted)
}

func TestClassifyReceiptAcceptsSuccess(t *testing.T) {
	err := classifyReceipt(&mmtypes.TxReceipt{Status: 1})
	assert.NoError(t, err)
}

func TestClassifyReceiptNilIsNotAnError(t *testing.T) {
	assert.NoError(t, classifyReceipt(nil))
}

func TestGasLedgerFromReceiptNilReceipt(t *testing.T) {
	assert.Nil(t, gasLedgerFromReceipt(nil, "swap"))
}

func TestGasLedgerFromReceiptRecordsHashAndOperation(t *testing.T) {
	hash := common.HexToHash("0xabc")
	entries := gasLedgerFromReceipt(&mmtypes.TxReceipt{TxHash: hash, Status: 1}, "swap")
	require.Len(t, entries, 1)
	assert.Equal(t, hash, entries[0].TxHash)
	assert.Equal(t, "swap", entries[0].Operation)
}

func TestCallMsgFromBuildsCallAgainstTarget(t *testing.T) {
	to := common.HexToAddress("0xdead")
	msg := callMsgFrom(&mmtypes.PreparedTx{To: to, Data: []byte{1, 2, 3}})
	require.NotNil(t, msg.To)
	assert.Equal(t, to, *msg.To)
	assert.Equal(t, []byte{1, 2, 3}, msg.Data)
}

func TestLocalSignerSignsWithWrappedKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &common.Address{},
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	signer := types.NewEIP155Signer(big.NewInt(1))

	signed, err := NewLocalSigner(key).SignTx(tx, signer)
	require.NoError(t, err)

	sender, err := types.Sender(signer, signed)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sender)
}

func TestEncodeRawTxProducesHexEncodedBinary(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    0,
		To:       &common.Address{},
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: big.NewInt(1),
	})
	signer := types.NewEIP155Signer(big.NewInt(1))
	signedTx, err := types.SignTx(tx, signer, key)
	require.NoError(t, err)

	encoded, err := encodeRawTx(signedTx)
	require.NoError(t, err)
	assert.True(t, len(encoded) > 2)
	assert.Equal(t, "0x", encoded[:2])
}
