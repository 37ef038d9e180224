// Package supervisor implements the supervisor (C10): the top-level state
// machine and the per-tick orchestration of every other component.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/flowmint/mmagent/internal/evaluator"
	"github.com/flowmint/mmagent/internal/events"
	"github.com/flowmint/mmagent/internal/execution"
	"github.com/flowmint/mmagent/internal/optimizer"
	"github.com/flowmint/mmagent/internal/priceref"
	"github.com/flowmint/mmagent/internal/stream"
	mmtypes "github.com/flowmint/mmagent/pkg/types"
)

// State is a position in the supervisor's lifecycle.
type State int

const (
	Booting State = iota
	Connecting
	Streaming
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Booting:
		return "Booting"
	case Connecting:
		return "Connecting"
	case Streaming:
		return "Streaming"
	case ShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Cache is the subset of the protocol cache the supervisor drives.
type Cache interface {
	ApplyMessage(msg stream.StreamMessage)
	ListComponents() []*mmtypes.Component
	SpotPrice(id mmtypes.ComponentID, tokenA, tokenB common.Address) (float64, error)
	Simulate(id mmtypes.ComponentID, amountIn *big.Int, tokenIn, tokenOut common.Address) (mmtypes.SimResult, error)
}

// Inventory is the subset of the inventory/allowance manager the supervisor
// drives.
type Inventory interface {
	FetchContext(ctx context.Context, blockNumber uint64) (mmtypes.MarketContext, error)
	FetchInventory(ctx context.Context) (mmtypes.Inventory, error)
	EnsureAllowance(token common.Address, requiredAmount *big.Int) (common.Hash, error)
}

// Config carries every threshold and policy knob the tick algorithm needs.
type Config struct {
	InstanceID            string
	Network               string
	Pair                  mmtypes.Pair
	EvaluatorConfig       evaluator.Config
	OptimizerConfig       optimizer.Config
	PriceSafetyRatio      float64
	MaxInventoryRatio     float64
	DeadlineDelta         time.Duration
	HeartbeatURL          string
	HeartbeatInterval     time.Duration
	RestartDelay          time.Duration
	RestartDelayTesting   time.Duration
	CircuitBreakerWindow  time.Duration
	CircuitBreakerMaxErrs int
	PublishEvents         bool
	Testing               bool
}

// Supervisor wires every component and drives the Booting → Connecting →
// Streaming → ShuttingDown lifecycle.
type Supervisor struct {
	cfg Config

	streamAdapter stream.Adapter
	cache         Cache
	priceFeed     priceref.Provider
	inventory     Inventory
	execAdapter   execution.Adapter
	bus           events.Publisher
	buildOrder    func(optimizer.Result, mmtypes.Readjustment, mmtypes.Inventory, uint64, time.Time) (mmtypes.Order, bool, error)

	state   State
	breaker *circuitBreaker
}

// New constructs a Supervisor. buildOrder closes over the router bindings
// and swap-arg encoder that are specific to the configured protocol; it
// returns (order, needsApproval-already-resolved, err).
func New(cfg Config, streamAdapter stream.Adapter, cache Cache, priceFeed priceref.Provider, inventory Inventory, execAdapter execution.Adapter, bus events.Publisher, buildOrder func(optimizer.Result, mmtypes.Readjustment, mmtypes.Inventory, uint64, time.Time) (mmtypes.Order, bool, error)) *Supervisor {
	restartWindow := cfg.CircuitBreakerWindow
	if restartWindow <= 0 {
		restartWindow = 5 * time.Minute
	}
	threshold := cfg.CircuitBreakerMaxErrs
	if threshold <= 0 {
		threshold = 5
	}

	return &Supervisor{
		cfg:           cfg,
		streamAdapter: streamAdapter,
		cache:         cache,
		priceFeed:     priceFeed,
		inventory:     inventory,
		execAdapter:   execAdapter,
		bus:           bus,
		buildOrder:    buildOrder,
		state:         Booting,
		breaker:       newCircuitBreaker(restartWindow, threshold),
	}
}

func (s *Supervisor) State() State {
	return s.state
}

// Run performs startup then drives the Streaming loop until ctx is
// cancelled or the circuit breaker halts.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.startup(ctx); err != nil {
		return err
	}

	if s.cfg.HeartbeatURL != "" && !s.cfg.Testing {
		go s.heartbeatLoop(ctx)
	}

	s.state = Streaming
	return s.streamLoop(ctx)
}

func (s *Supervisor) startup(ctx context.Context) error {
	s.state = Booting

	if s.cfg.PublishEvents {
		if err := s.bus.Ping(ctx); err != nil {
			return fmt.Errorf("supervisor: event bus unreachable at startup: %w", err)
		}
	}

	s.state = Connecting

	if s.cfg.PublishEvents {
		_ = s.bus.Publish(ctx, events.NewEvent(events.MessageTypeNewInstance, events.NewInstanceData{
			InstanceID: s.cfg.InstanceID,
			Network:    s.cfg.Network,
		}))
	}

	return nil
}

func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := http.Get(s.cfg.HeartbeatURL)
			if err != nil {
				log.Printf("supervisor: heartbeat failed: %v", err)
				continue
			}
			resp.Body.Close()
			if s.cfg.PublishEvents {
				_ = s.bus.Publish(ctx, events.NewEvent(events.MessageTypeHeartbeat, events.HeartbeatData{InstanceID: s.cfg.InstanceID}))
			}
		}
	}
}

func (s *Supervisor) streamLoop(ctx context.Context) error {
reconnect:
	for {
		msgCh, errCh := s.streamAdapter.Subscribe(ctx)

		for {
			select {
			case <-ctx.Done():
				s.state = ShuttingDown
				return ctx.Err()

			case err, ok := <-errCh:
				if !ok {
					continue reconnect
				}
				if s.breaker.RecordError(false) {
					return fmt.Errorf("supervisor: circuit breaker tripped: %w", err)
				}
				if !s.restartDelay(ctx) {
					s.state = ShuttingDown
					return ctx.Err()
				}
				continue reconnect

			case msg, ok := <-msgCh:
				if !ok {
					continue reconnect
				}
				s.runTickGuarded(ctx, msg)
			}
		}
	}
}

func (s *Supervisor) restartDelay(ctx context.Context) bool {
	delay := s.cfg.RestartDelay
	if s.cfg.Testing {
		delay = s.cfg.RestartDelayTesting
	}
	if delay <= 0 {
		return true
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// runTickGuarded recovers from a panic anywhere inside runTick, feeding it
// to the circuit breaker as a critical error.
func (s *Supervisor) runTickGuarded(ctx context.Context, msg stream.StreamMessage) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("supervisor: tick panicked: %v", r)
			s.breaker.RecordError(true)
		}
	}()

	if err := s.runTick(ctx, msg); err != nil {
		log.Printf("supervisor: tick failed: %v", err)
		s.breaker.RecordError(false)
		return
	}
	s.breaker.Reset()
}

// runTick is the evaluation-tick algorithm: apply the stream message,
// gather reference price/context/inventory concurrently, evaluate
// candidates, optimize and build one order per candidate, and submit the
// one with the highest profit_delta_bps.
func (s *Supervisor) runTick(ctx context.Context, msg stream.StreamMessage) error {
	s.cache.ApplyMessage(msg)

	var reference float64
	var market mmtypes.MarketContext
	var inventory mmtypes.Inventory

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		price, err := s.priceFeed.FetchPrice(gctx)
		if err != nil {
			return fmt.Errorf("reference price: %w", err)
		}
		reference = price
		return nil
	})
	g.Go(func() error {
		mc, err := s.inventory.FetchContext(gctx, msg.BlockNumber)
		if err != nil {
			return fmt.Errorf("market context: %w", err)
		}
		market = mc
		return nil
	})
	g.Go(func() error {
		inv, err := s.inventory.FetchInventory(gctx)
		if err != nil {
			return fmt.Errorf("inventory: %w", err)
		}
		inventory = inv
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	poolMedian := medianSpotPrice(s.cache, s.cfg.Pair)
	if err := priceref.Validate(reference, poolMedian, s.cfg.PriceSafetyRatio); err != nil {
		log.Printf("supervisor: reference price rejected: %v", err)
		return nil
	}

	if s.cfg.PublishEvents {
		_ = s.bus.PublishRateLimited(ctx, events.NewEvent(events.MessageTypePriceTick, events.PriceTickData{
			InstanceID: s.cfg.InstanceID,
			Reference:  reference,
			PoolMedian: poolMedian,
		}))
	}

	candidates := evaluator.Evaluate(s.cache.ListComponents(), s.cache, reference, s.cfg.Pair, s.cfg.EvaluatorConfig, market)
	if len(candidates) == 0 {
		return nil
	}

	type built struct {
		order mmtypes.Order
		profitBps float64
	}
	results := make([]built, 0, len(candidates))

	for _, r := range candidates {
		r.BlockNumber = msg.BlockNumber
		aMax := inventoryCap(r.Side, inventory, s.cfg.MaxInventoryRatio)
		if aMax.Sign() <= 0 {
			continue
		}

		tokenIn, tokenOut := s.cfg.Pair.Quote.Address, s.cfg.Pair.Base.Address
		if r.Side == mmtypes.SELL {
			tokenIn, tokenOut = s.cfg.Pair.Base.Address, s.cfg.Pair.Quote.Address
		}
		optCfg := s.cfg.OptimizerConfig
		optCfg.GasPriceWei = market.GasPrice
		opt := optimizer.Optimize(s.cache, r, tokenIn, tokenOut, big.NewInt(1), aMax, optCfg)
		if opt.Rejected {
			continue
		}

		order, needsApproval, err := s.buildOrder(opt, r, inventory, msg.BlockNumber, market.CapturedAt)
		if err != nil {
			log.Printf("supervisor: order build failed for %s: %v", r.Component.ID, err)
			continue
		}
		if needsApproval {
			if _, err := s.inventory.EnsureAllowance(tokenIn, order.AmountIn); err != nil {
				log.Printf("supervisor: approval failed for %s: %v", r.Component.ID, err)
				continue
			}
		}

		results = append(results, built{order: order, profitBps: opt.ProfitDeltaBps})
	}

	if len(results) == 0 {
		return nil
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].profitBps > results[j].profitBps
	})
	chosen := results[0].order
	log.Printf("supervisor: submitting order for %s (profit %.2f bps)", chosen.Component.ID, results[0].profitBps)

	result := s.execAdapter.Execute(ctx, chosen)
	s.publishTradeResult(ctx, chosen, results[0].profitBps, result)
	return nil
}

func (s *Supervisor) publishTradeResult(ctx context.Context, order mmtypes.Order, profitBps float64, result mmtypes.ExecResult) {
	if !s.cfg.PublishEvents {
		return
	}
	data := events.TradeEventData{
		InstanceID: s.cfg.InstanceID,
		TxHash:     result.TxHash.Hex(),
		Status:     events.StatusFailed,
		ProfitBps:  profitBps,
	}
	if order.AmountIn != nil {
		data.AmountIn = order.AmountIn.String()
	}
	if order.ExpectedAmountOut != nil {
		data.AmountOut = order.ExpectedAmountOut.String()
	}
	if result.Included && result.Err == nil {
		data.Status = events.StatusSuccess
	}
	if result.Err != nil {
		data.Reason = result.Err.Error()
	}
	_ = s.bus.Publish(ctx, events.NewEvent(events.MessageTypeTradeEvent, data))
}

// spotPricer is the narrow slice of Cache medianSpotPrice needs.
type spotPricer interface {
	ListComponents() []*mmtypes.Component
	SpotPrice(id mmtypes.ComponentID, tokenA, tokenB common.Address) (float64, error)
}

func medianSpotPrice(cache spotPricer, pair mmtypes.Pair) float64 {
	var prices []float64
	for _, c := range cache.ListComponents() {
		if !c.HasToken(pair.Base.Address) || !c.HasToken(pair.Quote.Address) {
			continue
		}
		p, err := cache.SpotPrice(c.ID, pair.Base.Address, pair.Quote.Address)
		if err == nil && p > 0 {
			prices = append(prices, p)
		}
	}
	if len(prices) == 0 {
		return 0
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return (prices[mid-1] + prices[mid]) / 2
}

func inventoryCap(side mmtypes.Side, inv mmtypes.Inventory, maxRatio float64) *big.Int {
	var available *big.Int
	if side == mmtypes.SELL {
		available = inv.WalletBase
	} else {
		available = inv.WalletQuote
	}
	if available == nil {
		return big.NewInt(0)
	}
	if maxRatio <= 0 || maxRatio >= 1 {
		return available
	}
	numerator := new(big.Int).Mul(available, big.NewInt(int64(maxRatio*10_000)))
	return numerator.Div(numerator, big.NewInt(10_000))
}
