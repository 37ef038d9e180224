package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
instanceId: "mm-001"
network: "avalanche-mainnet"
rpc: "https://api.avax.network/ext/bc/C/rpc"
chainId: 43114
contracts:
  router:
    address: "0x0000000000000000000000000000000000dEaD"
    abi: "abi/router.json"
pair:
  tag: "wavax-usdc"
  base: { contract: wavax, symbol: WAVAX, decimals: 18 }
  quote: { contract: usdc, symbol: USDC, decimals: 6 }
  gasToken: { contract: wavax, symbol: WAVAX, decimals: 18 }
stream:
  url: "wss://indexer.example/stream"
  initialBackoffMs: 500
  maxBackoffMs: 30000
  maxRetries: 0
  handshakeTimeoutSec: 10
priceFeed:
  type: websocket_ticker
  url: "wss://ticker.example/ws"
  symbol: "WAVAX-USDC"
  reverse: false
  staleAfterSec: 15
gasUsd:
  type: websocket_ticker
  url: "wss://ticker.example/ws"
  symbol: "WAVAX-USD"
  staleAfterSec: 15
evaluator:
  minWatchSpreadBps: 5
  minNotionalUSD: 50
  reserveEpsilon: 0.001
optimizer:
  maxIterations: 40
  relativeTolerance: 0.0001
  minExecutableBps: 2
  maxSlippagePct: 1
  gasTokenToOutputRate: 1.0
execution:
  policy: public_rpc
  inclusionBlockDelay: 1
  maxRetryBlocks: 3
  txGasLimit: 500000
  deadlineDeltaSec: 120
events:
  redisUrl: "redis://localhost:6379/0"
  channel: "mmagent:wavax-usdc"
  minPublishTimeframeMs: 1000
  enabled: true
database:
  dsn: "root:root@tcp(127.0.0.1:3306)/mmagent?charset=utf8mb4&parseTime=True&loc=Local"
  enabled: true
supervisor:
  heartbeatUrl: "https://healthchecks.example/ping/abc"
  heartbeatIntervalSec: 60
  restartDelaySec: 5
  circuitBreakerWindowSec: 60
  circuitBreakerMaxErrors: 5
  priceSafetyRatio: 0.02
  maxInventoryRatio: 0.25
  infiniteApprove: true
`

func writeTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	return path
}

func TestLoadConfigParsesAllSections(t *testing.T) {
	path := writeTempConfig(t)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(43114), cfg.ChainID)
	assert.Equal(t, "wavax-usdc", cfg.Pair.Tag)
	assert.Equal(t, uint8(18), cfg.Pair.Base.Decimals)
	assert.Equal(t, "public_rpc", cfg.Execution.Policy)
	assert.True(t, cfg.Events.Enabled)
	assert.Equal(t, 0.02, cfg.Supervisor.PriceSafetyRatio)
	assert.Equal(t, "WAVAX-USD", cfg.GasUSD.Symbol)
	assert.Equal(t, "mm-001", cfg.InstanceID)
	assert.Equal(t, "avalanche-mainnet", cfg.Network)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestDurationHelpersConvertUnits(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Stream.InitialBackoff())
	assert.Equal(t, 10*time.Second, cfg.Stream.HandshakeTimeout())
	assert.Equal(t, 15*time.Second, cfg.PriceFeed.StaleAfter())
	assert.Equal(t, 120*time.Second, cfg.Execution.DeadlineDelta())
	assert.Equal(t, time.Second, cfg.Events.MinPublishTimeframe())
	assert.Equal(t, 60*time.Second, cfg.Supervisor.HeartbeatInterval())
}

func TestContractAddressResolvesKnownName(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t))
	require.NoError(t, err)

	addr, err := cfg.ContractAddress("router")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000dEaD", addr.Hex())
}

func TestContractAddressUnknownNameErrors(t *testing.T) {
	cfg, err := LoadConfig(writeTempConfig(t))
	require.NoError(t, err)

	_, err = cfg.ContractAddress("nonexistent")
	assert.Error(t, err)
}

func TestLoadDotEnvMissingFileIsNotAnError(t *testing.T) {
	err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
