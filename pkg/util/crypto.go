package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/flowmint/mmagent/pkg/types"
)

// Decrypt reverses the AES-GCM encryption applied to the wallet private key
// at rest. key is stretched with SHA-256 to a 32-byte AES-256 key; encrypted
// is hex-encoded nonce||ciphertext.
func Decrypt(key []byte, encrypted string) (string, error) {
	raw, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted payload: %w", err)
	}

	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to init GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// Hex2Bytes strips an optional 0x prefix and decodes the remaining hex.
func Hex2Bytes(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// hardhatArtifact is the subset of a Hardhat compilation artifact this agent
// needs: the contract's ABI.
type hardhatArtifact struct {
	ABI json.RawMessage `json:"abi"`
}

// LoadABIFromHardhatArtifact reads a Hardhat-style JSON artifact file and
// parses its "abi" field into a go-ethereum abi.ABI.
func LoadABIFromHardhatArtifact(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI artifact %s: %w", path, err)
	}

	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI artifact %s: %w", path, err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("artifact %s has no abi field", path)
	}

	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to decode ABI in %s: %w", path, err)
	}
	return parsed, nil
}

// ExtractGasCost computes gasUsed * effectiveGasPrice from a normalized
// receipt.
func ExtractGasCost(receipt *types.TxReceipt) (*big.Int, error) {
	if receipt == nil {
		return nil, fmt.Errorf("nil receipt")
	}

	gasUsed, ok := new(big.Int).SetString(receipt.GasUsed, 0)
	if !ok {
		return nil, fmt.Errorf("invalid GasUsed %q", receipt.GasUsed)
	}
	gasPrice, ok := new(big.Int).SetString(receipt.EffectiveGasPrice, 0)
	if !ok {
		return nil, fmt.Errorf("invalid EffectiveGasPrice %q", receipt.EffectiveGasPrice)
	}

	return new(big.Int).Mul(gasUsed, gasPrice), nil
}

// ValidateOrderRequest sanity-checks an optimizer-sized trade before it is
// handed to the order builder: non-nil, positive amountIn, and a slippage
// percentage in [0, 100).
func ValidateOrderRequest(amountIn *big.Int, slippagePct int) error {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return fmt.Errorf("amountIn must be positive")
	}
	if slippagePct < 0 || slippagePct >= 100 {
		return fmt.Errorf("slippagePct out of range: %d", slippagePct)
	}
	return nil
}
