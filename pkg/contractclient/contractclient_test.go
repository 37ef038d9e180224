package contractclient

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/flowmint/mmagent/pkg/util"
)

// These exercise a live RPC endpoint named by an env file under env/ (each
// test names its own) and are skipped when that file is absent.
func loadTestEnv(t *testing.T, path string) {
	t.Helper()
	if err := godotenv.Load(path); err != nil {
		t.Skipf("skipping: %s not present", path)
	}
}

func TestDecodeTransaction(t *testing.T) {
	loadTestEnv(t, "env/.env.test.local")

	contractAddr := os.Getenv("CONTRACT_ADDR")
	rpcURL := os.Getenv("RPC_URL")
	txHash := os.Getenv("TX_HASH")
	txData := os.Getenv("TX_DATA")
	path := os.Getenv("ABI_PATH")
	if contractAddr == "" || rpcURL == "" || path == "" || (txHash == "" && txData == "") {
		t.Skip("required env vars not set")
	}

	abi, err := util.LoadABIFromHardhatArtifact(path)
	if err != nil {
		t.Fatal(err)
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		t.Fatal(err)
	}
	cc := NewContractClient(eth, common.HexToAddress(contractAddr), abi)

	t.Run("decode_tx", func(t *testing.T) {
		var txDataBytes []byte
		if txData != "" {
			txDataBytes = util.Hex2Bytes(txData)
		} else {
			txDataBytes, err = cc.TransactionData(common.HexToHash(txHash))
			if err != nil {
				t.Fatal(err)
			}
		}

		decoded, err := cc.DecodeTransaction(txDataBytes)
		if err != nil {
			t.Fatal(err)
		}

		jsonData, err := json.MarshalIndent(decoded, "", "  ")
		if err != nil {
			t.Fatal(err)
		}
		t.Logf("Decoded transaction:\n%s", string(jsonData))
	})
}

func TestCallTransaction(t *testing.T) {
	loadTestEnv(t, "env/.env.globalstate.local")

	contractAddr := os.Getenv("CONTRACT_ADDR")
	rpcURL := os.Getenv("RPC_URL")
	path := os.Getenv("ABI_PATH")
	if contractAddr == "" || rpcURL == "" || path == "" {
		t.Skip("required env vars not set")
	}

	abi, err := util.LoadABIFromHardhatArtifact(path)
	if err != nil {
		t.Fatal(err)
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		t.Fatal(err)
	}
	cc := NewContractClient(eth, common.HexToAddress(contractAddr), abi)

	t.Run("globalState", func(t *testing.T) {
		outputs, err := cc.Call(nil, "globalState")
		if err != nil {
			t.Fatal(err)
		}
		t.Logf("globalState outputs: %v", outputs)
	})
}
