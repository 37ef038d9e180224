// Command maker runs one configured trading-pair instance of the
// market-making agent: it wires the stream adapter, protocol cache,
// reference price feed, inventory manager, execution adapter and event bus
// into a supervisor and runs it until signalled to stop. When
// Database.Enabled is set it also opens the persistence sink, which is not
// passed to the supervisor.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	blackholedex "github.com/flowmint/mmagent"
	"github.com/flowmint/mmagent/configs"
	"github.com/flowmint/mmagent/internal/cache"
	"github.com/flowmint/mmagent/internal/evaluator"
	"github.com/flowmint/mmagent/internal/events"
	"github.com/flowmint/mmagent/internal/execution"
	"github.com/flowmint/mmagent/internal/gormsink"
	"github.com/flowmint/mmagent/internal/inventory"
	"github.com/flowmint/mmagent/internal/optimizer"
	"github.com/flowmint/mmagent/internal/orderbuilder"
	"github.com/flowmint/mmagent/internal/priceref"
	"github.com/flowmint/mmagent/internal/stream"
	"github.com/flowmint/mmagent/internal/supervisor"
	"github.com/flowmint/mmagent/pkg/contractclient"
	mmtypes "github.com/flowmint/mmagent/pkg/types"
	"github.com/flowmint/mmagent/pkg/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "maker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := configs.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	privateKey, myAddr, err := loadWallet()
	if err != nil {
		return err
	}

	eth, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		return fmt.Errorf("dialing rpc: %w", err)
	}

	routerAddr, err := cfg.ContractAddress("router")
	if err != nil {
		return err
	}
	routerABIPath, err := cfg.ContractABIPath("router")
	if err != nil {
		return err
	}
	routerABI, err := util.LoadABIFromHardhatArtifact(routerABIPath)
	if err != nil {
		return fmt.Errorf("loading router abi: %w", err)
	}
	routerClient := contractclient.NewContractClient(eth, routerAddr, routerABI)

	pair, tokenClients, err := buildPair(eth, cfg)
	if err != nil {
		return err
	}

	priceFeed, err := buildPriceFeed(context.Background(), eth, cfg, cfg.PriceFeed)
	if err != nil {
		return err
	}
	gasUSDFeed, err := buildGasUSDFeed(context.Background(), eth, cfg)
	if err != nil {
		return err
	}

	inv := inventory.New(eth, myAddr, routerAddr, pair.Base.Address, pair.Quote.Address, pair.GasToken.Address,
		privateKey, tokenClients, cfg.Supervisor.InfiniteApprove, priceFeed, gasUSDFeed)

	streamAdapter := stream.NewWebsocketAdapter(stream.Config{
		URL:              cfg.Stream.URL,
		InitialBackoff:   cfg.Stream.InitialBackoff(),
		MaxBackoff:       cfg.Stream.MaxBackoff(),
		MaxRetries:       cfg.Stream.MaxRetries,
		HandshakeTimeout: cfg.Stream.HandshakeTimeout(),
	})

	protocolCache := cache.New()

	execAdapter, err := buildExecutionAdapter(context.Background(), eth, privateKey, cfg)
	if err != nil {
		return err
	}

	var bus events.Publisher
	if cfg.Events.Enabled {
		redisBus, err := events.New(cfg.Events.RedisURL, cfg.Events.Channel, cfg.Events.MinPublishTimeframe())
		if err != nil {
			return fmt.Errorf("connecting event bus: %w", err)
		}
		bus = redisBus
		defer redisBus.Close()
	}

	if cfg.Database.Enabled {
		sink, err := gormsink.New(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("connecting database sink: %w", err)
		}
		defer sink.Close()
	}

	buildOrder := makeOrderBuilder(routerClient, tokenClients, routerAddr, pair, cfg)

	sup := supervisor.New(supervisor.Config{
		InstanceID: cfg.InstanceID,
		Network:    cfg.Network,
		Pair:       pair,
		EvaluatorConfig: evaluator.Config{
			MinWatchSpreadBps: cfg.Evaluator.MinWatchSpreadBps,
			MinNotionalUSD:    cfg.Evaluator.MinNotionalUSD,
			ReserveEpsilon:    cfg.Evaluator.ReserveEpsilon,
		},
		OptimizerConfig: optimizer.Config{
			MaxIterations:        cfg.Optimizer.MaxIterations,
			RelativeTolerance:    cfg.Optimizer.RelativeTolerance,
			MinExecutableBps:     cfg.Optimizer.MinExecutableBps,
			MaxSlippagePct:       cfg.Optimizer.MaxSlippagePct,
			GasTokenToOutputRate: cfg.Optimizer.GasTokenToOutputRate,
		},
		PriceSafetyRatio:      cfg.Supervisor.PriceSafetyRatio,
		MaxInventoryRatio:     cfg.Supervisor.MaxInventoryRatio,
		DeadlineDelta:         cfg.Execution.DeadlineDelta(),
		HeartbeatURL:          cfg.Supervisor.HeartbeatURL,
		HeartbeatInterval:     cfg.Supervisor.HeartbeatInterval(),
		RestartDelay:          cfg.Supervisor.RestartDelay(),
		RestartDelayTesting:   time.Second,
		CircuitBreakerWindow:  cfg.Supervisor.CircuitBreakerWindow(),
		CircuitBreakerMaxErrs: cfg.Supervisor.CircuitBreakerMaxErrs,
		PublishEvents:         cfg.Events.Enabled,
	}, streamAdapter, protocolCache, priceFeed, inv, execAdapter, bus, buildOrder)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return sup.Run(ctx)
}

// loadWallet decrypts the wallet private key from ENC_PK using the KEY
// environment variable, the same AES-GCM-at-rest convention the original
// single-strategy client used.
func loadWallet() (*ecdsa.PrivateKey, common.Address, error) {
	encPk := os.Getenv("ENC_PK")
	if encPk == "" {
		return nil, common.Address{}, fmt.Errorf("ENC_PK not set")
	}
	key := os.Getenv("KEY")
	if key == "" {
		return nil, common.Address{}, fmt.Errorf("KEY not set")
	}

	hexKey, err := util.Decrypt([]byte(key), encPk)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("decrypting wallet key: %w", err)
	}
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("parsing wallet key: %w", err)
	}
	return privateKey, crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

// buildPair resolves the configured pair's tokens into mmtypes.Pair and
// binds a contractclient.ContractClient to each, for inventory balance and
// allowance reads.
func buildPair(eth *ethclient.Client, cfg *configs.Config) (mmtypes.Pair, map[common.Address]contractclient.ContractClient, error) {
	erc20ABIPath, err := cfg.ContractABIPath("erc20")
	if err != nil {
		return mmtypes.Pair{}, nil, err
	}
	erc20ABI, err := util.LoadABIFromHardhatArtifact(erc20ABIPath)
	if err != nil {
		return mmtypes.Pair{}, nil, fmt.Errorf("loading erc20 abi: %w", err)
	}

	resolve := func(t configs.TokenYAML) (mmtypes.Token, contractclient.ContractClient, error) {
		addr, err := cfg.ContractAddress(t.Contract)
		if err != nil {
			return mmtypes.Token{}, nil, err
		}
		client := contractclient.NewContractClient(eth, addr, erc20ABI)
		return mmtypes.Token{Address: addr, Symbol: t.Symbol, Decimals: t.Decimals}, client, nil
	}

	base, baseClient, err := resolve(cfg.Pair.Base)
	if err != nil {
		return mmtypes.Pair{}, nil, err
	}
	quote, quoteClient, err := resolve(cfg.Pair.Quote)
	if err != nil {
		return mmtypes.Pair{}, nil, err
	}
	gasToken, gasClient, err := resolve(cfg.Pair.GasToken)
	if err != nil {
		return mmtypes.Pair{}, nil, err
	}

	tokenClients := map[common.Address]contractclient.ContractClient{
		base.Address:  baseClient,
		quote.Address: quoteClient,
	}
	if gasToken.Address != base.Address && gasToken.Address != quote.Address {
		tokenClients[gasToken.Address] = gasClient
	}

	return mmtypes.Pair{
		Tag:       cfg.Pair.Tag,
		Base:      base,
		Quote:     quote,
		GasToken:  gasToken,
		FeeOnBase: cfg.Pair.FeeOnBase,
	}, tokenClients, nil
}

// buildPriceFeed selects and constructs the configured reference price
// source, wrapping it for pair-reversal if configured.
func buildPriceFeed(ctx context.Context, eth *ethclient.Client, cfg *configs.Config, feed configs.PriceFeedYAML) (priceref.Provider, error) {
	var provider priceref.Provider

	switch priceref.Tag(feed.Type) {
	case priceref.TagWebsocketTicker:
		provider = priceref.NewWebsocketTickerProvider(ctx, feed.URL, feed.Symbol, feed.StaleAfter())
	case priceref.TagOnChainOracle:
		oracleAddr, err := cfg.ContractAddress(feed.Oracle)
		if err != nil {
			return nil, err
		}
		oracleABIPath, err := cfg.ContractABIPath(feed.Oracle)
		if err != nil {
			return nil, err
		}
		oracleABI, err := util.LoadABIFromHardhatArtifact(oracleABIPath)
		if err != nil {
			return nil, fmt.Errorf("loading oracle abi: %w", err)
		}
		client := contractclient.NewContractClient(eth, oracleAddr, oracleABI)
		provider = priceref.NewOnChainOracleProvider(client, feed.Decimals)
	default:
		return nil, fmt.Errorf("unknown price feed type %q", feed.Type)
	}

	return priceref.WithReverse(provider, feed.Reverse), nil
}

// buildGasUSDFeed builds the gas-token/USD rate the inventory manager needs
// for the evaluator's USD-notional floor. An empty Type disables it without
// failing startup: GasTokenToUSD is then nil, and the evaluator skips every
// candidate because the floor cannot be evaluated.
func buildGasUSDFeed(ctx context.Context, eth *ethclient.Client, cfg *configs.Config) (priceref.Provider, error) {
	if cfg.GasUSD.Type == "" {
		return nil, nil
	}
	return buildPriceFeed(ctx, eth, cfg, cfg.GasUSD)
}

// buildExecutionAdapter selects and constructs the configured chain
// submission policy.
func buildExecutionAdapter(ctx context.Context, eth *ethclient.Client, privateKey *ecdsa.PrivateKey, cfg *configs.Config) (execution.Adapter, error) {
	signer := execution.NewLocalSigner(privateKey)

	switch cfg.Execution.Policy {
	case "public_rpc":
		return execution.NewPublicRPCAdapter(eth, signer, cfg.Execution.InclusionBlockDelay, cfg.Execution.SkipSimulation), nil
	case "private_relay":
		return execution.NewPrivateRelayAdapter(ctx, eth, cfg.Execution.RelayURL, signer, cfg.Execution.InclusionBlockDelay, cfg.Execution.MaxRetryBlocks)
	case "preconf":
		return execution.NewPreconfAdapter(ctx, eth, cfg.Execution.PreconfURL, signer)
	default:
		return nil, fmt.Errorf("unknown execution policy %q", cfg.Execution.Policy)
	}
}

// makeOrderBuilder closes over the router binding, the token bindings used
// for approvals, and the protocol's swap calldata shape (Blackhole's
// swapExactTokensForTokens, taking a single-hop route) so the supervisor
// itself never imports a protocol-specific package.
func makeOrderBuilder(routerClient contractclient.ContractClient, tokenClients map[common.Address]contractclient.ContractClient, routerAddr common.Address, pair mmtypes.Pair, cfg *configs.Config) func(optimizer.Result, mmtypes.Readjustment, mmtypes.Inventory, uint64, time.Time) (mmtypes.Order, bool, error) {
	gasPolicy := orderbuilder.GasPolicy{
		TxType:     mmtypes.Standard,
		TxGasLimit: cfg.Execution.TxGasLimit,
	}

	return func(opt optimizer.Result, r mmtypes.Readjustment, inv mmtypes.Inventory, blockNumber uint64, blockTime time.Time) (mmtypes.Order, bool, error) {
		tokenIn, tokenOut := pair.Quote.Address, pair.Base.Address
		if r.Side == mmtypes.SELL {
			tokenIn, tokenOut = pair.Base.Address, pair.Quote.Address
		}

		hops := []blackholedex.Route{{From: tokenIn, To: tokenOut, Stable: false}}
		swapArgs := func(amountIn, minAmountOut *big.Int, to common.Address, deadline *big.Int) []interface{} {
			return []interface{}{amountIn, minAmountOut, hops, to, deadline}
		}

		current := inv.Allowances[tokenIn]
		needsApproval := !current.Covers(opt.AmountIn)

		order, err := orderbuilder.Build(orderbuilder.Params{
			Component:      r.Component,
			Side:           r.Side,
			Router:         routerClient,
			SwapMethod:     "swapExactTokensForTokens",
			SwapArgs:       swapArgs,
			TokenIn:        tokenIn,
			AmountIn:       opt.AmountIn,
			AmountOut:      opt.AmountOut,
			MinAmountOut:   opt.MinAmountOut,
			GasEstimate:    opt.GasEstimate,
			ProfitBps:      opt.ProfitDeltaBps,
			BlockNumber:    blockNumber,
			BlockTime:      blockTime,
			DeadlineDelta:  cfg.Execution.DeadlineDelta(),
			Nonce:          inv.LastNonce,
			NeedsApproval:  needsApproval,
			ApproveRouter:  tokenClients[tokenIn],
			ApproveSpender: routerAddr,
			ApproveAmount:  opt.AmountIn,
			Gas:            gasPolicy,
		})
		return order, needsApproval, err
	}
}
