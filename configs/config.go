// Package configs loads the agent's YAML configuration and the secrets it
// references: config.yml for topology/thresholds, environment variables
// (optionally sourced from a .env file) for anything sensitive.
package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the parsed shape of config.yml.
type Config struct {
	InstanceID string                 `yaml:"instanceId"`
	Network    string                 `yaml:"network"`
	RPC        string                 `yaml:"rpc"`
	ChainID    int64                  `yaml:"chainId"`
	Contracts  map[string]ContractRef `yaml:"contracts"`
	Pair       PairYAML               `yaml:"pair"`
	Stream     StreamYAML             `yaml:"stream"`
	PriceFeed  PriceFeedYAML          `yaml:"priceFeed"`
	GasUSD     PriceFeedYAML          `yaml:"gasUsd"` // gas-token/USD rate; Type empty disables the feed
	Evaluator  EvaluatorYAML          `yaml:"evaluator"`
	Optimizer  OptimizerYAML          `yaml:"optimizer"`
	Execution  ExecutionYAML          `yaml:"execution"`
	Events     EventsYAML             `yaml:"events"`
	Database   DatabaseYAML           `yaml:"database"`
	Supervisor SupervisorYAML         `yaml:"supervisor"`
}

// ContractRef names a contract's address and ABI artifact, keyed by a label
// ("router", "wavax", "usdc", ...) referenced elsewhere in the config.
type ContractRef struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

// TokenYAML describes one ERC20 leg of the trading pair.
type TokenYAML struct {
	Contract string `yaml:"contract"` // key into Config.Contracts
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

type PairYAML struct {
	Tag       string    `yaml:"tag"`
	Base      TokenYAML `yaml:"base"`
	Quote     TokenYAML `yaml:"quote"`
	GasToken  TokenYAML `yaml:"gasToken"`
	FeeOnBase bool      `yaml:"feeOnBase"`
}

type StreamYAML struct {
	URL                 string `yaml:"url"`
	InitialBackoffMs    int    `yaml:"initialBackoffMs"`
	MaxBackoffMs        int    `yaml:"maxBackoffMs"`
	MaxRetries          int    `yaml:"maxRetries"`
	HandshakeTimeoutSec int    `yaml:"handshakeTimeoutSec"`
}

// InitialBackoff, MaxBackoff, and HandshakeTimeout convert the YAML's plain
// integer fields into durations for internal/stream.Config.
func (s StreamYAML) InitialBackoff() time.Duration {
	return time.Duration(s.InitialBackoffMs) * time.Millisecond
}
func (s StreamYAML) MaxBackoff() time.Duration { return time.Duration(s.MaxBackoffMs) * time.Millisecond }
func (s StreamYAML) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutSec) * time.Second
}

type PriceFeedYAML struct {
	Type          string `yaml:"type"` // "websocket_ticker" | "onchain_oracle"
	URL           string `yaml:"url"`
	Symbol        string `yaml:"symbol"`
	Oracle        string `yaml:"oracle"` // key into Config.Contracts, for onchain_oracle
	Decimals      int    `yaml:"decimals"`
	Reverse       bool   `yaml:"reverse"`
	StaleAfterSec int    `yaml:"staleAfterSec"`
}

func (p PriceFeedYAML) StaleAfter() time.Duration { return time.Duration(p.StaleAfterSec) * time.Second }

type EvaluatorYAML struct {
	MinWatchSpreadBps float64 `yaml:"minWatchSpreadBps"`
	MinNotionalUSD    float64 `yaml:"minNotionalUSD"`
	ReserveEpsilon    float64 `yaml:"reserveEpsilon"`
}

type OptimizerYAML struct {
	MaxIterations        int     `yaml:"maxIterations"`
	RelativeTolerance    float64 `yaml:"relativeTolerance"`
	MinExecutableBps     float64 `yaml:"minExecutableBps"`
	MaxSlippagePct       float64 `yaml:"maxSlippagePct"`
	GasTokenToOutputRate float64 `yaml:"gasTokenToOutputRate"`
}

type ExecutionYAML struct {
	Policy              string `yaml:"policy"` // "public_rpc" | "private_relay" | "preconf"
	RelayURL            string `yaml:"relayUrl"`
	PreconfURL          string `yaml:"preconfUrl"`
	InclusionBlockDelay uint64 `yaml:"inclusionBlockDelay"`
	MaxRetryBlocks      uint64 `yaml:"maxRetryBlocks"`
	SkipSimulation      bool   `yaml:"skipSimulation"`
	TxGasLimit          uint64 `yaml:"txGasLimit"`
	DeadlineDeltaSec    int    `yaml:"deadlineDeltaSec"`
}

func (e ExecutionYAML) DeadlineDelta() time.Duration {
	return time.Duration(e.DeadlineDeltaSec) * time.Second
}

type EventsYAML struct {
	RedisURL              string `yaml:"redisUrl"`
	Channel               string `yaml:"channel"`
	MinPublishTimeframeMs int    `yaml:"minPublishTimeframeMs"`
	Enabled               bool   `yaml:"enabled"`
}

func (e EventsYAML) MinPublishTimeframe() time.Duration {
	return time.Duration(e.MinPublishTimeframeMs) * time.Millisecond
}

type DatabaseYAML struct {
	DSN     string `yaml:"dsn"`
	Enabled bool   `yaml:"enabled"`
}

type SupervisorYAML struct {
	HeartbeatURL            string  `yaml:"heartbeatUrl"`
	HeartbeatIntervalSec    int     `yaml:"heartbeatIntervalSec"`
	RestartDelaySec         int     `yaml:"restartDelaySec"`
	CircuitBreakerWindowSec int     `yaml:"circuitBreakerWindowSec"`
	CircuitBreakerMaxErrs   int     `yaml:"circuitBreakerMaxErrors"`
	PriceSafetyRatio        float64 `yaml:"priceSafetyRatio"`
	MaxInventoryRatio       float64 `yaml:"maxInventoryRatio"`
	InfiniteApprove         bool    `yaml:"infiniteApprove"`
}

func (s SupervisorYAML) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSec) * time.Second
}
func (s SupervisorYAML) RestartDelay() time.Duration {
	return time.Duration(s.RestartDelaySec) * time.Second
}
func (s SupervisorYAML) CircuitBreakerWindow() time.Duration {
	return time.Duration(s.CircuitBreakerWindowSec) * time.Second
}

// LoadConfig reads and parses path into a Config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("configs: failed to parse config YAML: %w", err)
	}
	return &config, nil
}

// LoadDotEnv loads secrets (ENC_PK, KEY, and any RPC/relay credentials) from
// a .env file at path into the process environment. A missing file is not
// an error: secrets may already be set by the surrounding environment
// (systemd unit, container, CI).
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// ContractAddress resolves a named contract reference to its address.
func (c *Config) ContractAddress(name string) (common.Address, error) {
	ref, ok := c.Contracts[name]
	if !ok {
		return common.Address{}, fmt.Errorf("configs: no contract named %q", name)
	}
	return common.HexToAddress(ref.Address), nil
}

// ContractABIPath resolves a named contract reference to its ABI artifact
// path.
func (c *Config) ContractABIPath(name string) (string, error) {
	ref, ok := c.Contracts[name]
	if !ok {
		return "", fmt.Errorf("configs: no contract named %q", name)
	}
	return ref.ABI, nil
}
