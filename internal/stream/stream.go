// Package stream implements the pool-state stream adapter (C1): a lazy,
// ordered, restartable sequence of per-block deltas from a protocol indexer,
// delivered over a websocket connection with exponential back-off on
// disconnect.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/flowmint/mmagent/pkg/types"
)

// ErrPermanentFailure is surfaced once reconnect attempts exceed the
// configured cap; the supervisor treats it as fatal.
var ErrPermanentFailure = errors.New("stream: permanent connection failure")

// StreamMessage is one block-tagged delta from the indexer. NewComponents
// and UpdatedComponents may overlap in practice (an upsert); RemovedComponents
// names components to retire from the cache.
type StreamMessage struct {
	BlockNumber       uint64
	NewComponents     []*types.Component
	UpdatedComponents []*types.Component
	RemovedComponents []types.ComponentID
	StateDeltas       map[types.ComponentID]types.ProtocolState
	BalanceDeltas     map[types.ComponentID]map[common.Address]*big.Int
}

// Adapter yields the ordered stream of messages for one pair/network
// instance.
type Adapter interface {
	// Subscribe connects (or reconnects) and returns a channel of messages
	// non-decreasing by BlockNumber (a message for a lower block than the
	// last one delivered is dropped), plus a channel that receives
	// exactly one error when the stream terminates (ErrPermanentFailure
	// after retries are exhausted, or ctx.Err() on cancellation).
	Subscribe(ctx context.Context) (<-chan StreamMessage, <-chan error)
}

// Config controls reconnect policy and the indexer endpoint.
type Config struct {
	URL               string
	APIKey            string
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	MaxRetries        int // 0 = unlimited
	HandshakeTimeout  time.Duration
}

// wsAdapter is the reference implementation: a websocket connection to the
// protocol indexer, reconnecting with exponential back-off.
type wsAdapter struct {
	cfg    Config
	dialer *websocket.Dialer
}

// NewWebsocketAdapter builds an Adapter that reads indexer deltas off a
// websocket connection, one JSON message per frame.
func NewWebsocketAdapter(cfg Config) Adapter {
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	return &wsAdapter{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

func (a *wsAdapter) Subscribe(ctx context.Context) (<-chan StreamMessage, <-chan error) {
	out := make(chan StreamMessage, 32)
	errc := make(chan error, 1)

	go a.run(ctx, out, errc)
	return out, errc
}

func (a *wsAdapter) run(ctx context.Context, out chan<- StreamMessage, errc chan<- error) {
	defer close(out)

	backoff := a.cfg.InitialBackoff
	attempts := 0
	var lastBlock uint64

	for {
		select {
		case <-ctx.Done():
			errc <- ctx.Err()
			return
		default:
		}

		conn, _, err := a.dialer.DialContext(ctx, a.url(), nil)
		if err != nil {
			attempts++
			if a.cfg.MaxRetries > 0 && attempts > a.cfg.MaxRetries {
				errc <- fmt.Errorf("%w: %v", ErrPermanentFailure, err)
				return
			}
			log.Printf("stream: dial failed (attempt %d): %v, retrying in %s", attempts, err, backoff)
			if !sleepOrDone(ctx, backoff) {
				errc <- ctx.Err()
				return
			}
			backoff = nextBackoff(backoff, a.cfg.MaxBackoff)
			continue
		}

		attempts = 0
		backoff = a.cfg.InitialBackoff
		if err := a.readLoop(ctx, conn, out, &lastBlock); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				errc <- ctx.Err()
				return
			}
			log.Printf("stream: connection lost after block %d: %v, reconnecting", lastBlock, err)
			if !sleepOrDone(ctx, backoff) {
				errc <- ctx.Err()
				return
			}
			backoff = nextBackoff(backoff, a.cfg.MaxBackoff)
			continue
		}
	}
}

func (a *wsAdapter) url() string {
	if a.cfg.APIKey == "" {
		return a.cfg.URL
	}
	if strings.Contains(a.cfg.URL, "?") {
		return a.cfg.URL + "&api_key=" + a.cfg.APIKey
	}
	return a.cfg.URL + "?api_key=" + a.cfg.APIKey
}

// wireMessage is the indexer's wire schema, filtered of components whose id
// carries the null-address sentinel before being converted to a
// StreamMessage.
type wireMessage struct {
	BlockNumber       uint64                         `json:"block_number"`
	NewComponents     []wireComponent                `json:"new_components"`
	UpdatedComponents []wireComponent                `json:"updated_components"`
	RemovedComponents []string                       `json:"removed_components"`
	BalanceDeltas     map[string]map[string]string   `json:"balance_deltas"`
}

type wireComponent struct {
	ID         string            `json:"id"`
	Protocol   string            `json:"protocol"`
	Tokens     []string          `json:"tokens"`
	StaticAttr map[string]string `json:"static_attributes"`
}

const nullAddressSentinel = "0x0000000000000000000000000000000000000000"

func (a *wsAdapter) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- StreamMessage, lastBlock *uint64) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var wire wireMessage
		if err := json.Unmarshal(data, &wire); err != nil {
			log.Printf("stream: malformed message dropped: %v", err)
			continue
		}

		if wire.BlockNumber < *lastBlock {
			log.Printf("stream: out-of-order message for block %d after %d, dropping", wire.BlockNumber, *lastBlock)
			continue
		}

		msg := convert(wire)
		*lastBlock = wire.BlockNumber

		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func convert(wire wireMessage) StreamMessage {
	msg := StreamMessage{
		BlockNumber:   wire.BlockNumber,
		BalanceDeltas: make(map[types.ComponentID]map[common.Address]*big.Int),
	}

	for _, c := range wire.NewComponents {
		if isNullSentinel(c.ID) {
			continue
		}
		msg.NewComponents = append(msg.NewComponents, toComponent(c))
	}
	for _, c := range wire.UpdatedComponents {
		if isNullSentinel(c.ID) {
			continue
		}
		msg.UpdatedComponents = append(msg.UpdatedComponents, toComponent(c))
	}
	for _, id := range wire.RemovedComponents {
		if isNullSentinel(id) {
			continue
		}
		msg.RemovedComponents = append(msg.RemovedComponents, types.ComponentID(id))
	}
	for compID, balances := range wire.BalanceDeltas {
		if isNullSentinel(compID) {
			continue
		}
		converted := make(map[common.Address]*big.Int, len(balances))
		for tokenAddr, amount := range balances {
			v, ok := new(big.Int).SetString(amount, 10)
			if !ok {
				continue
			}
			converted[common.HexToAddress(tokenAddr)] = v
		}
		msg.BalanceDeltas[types.ComponentID(compID)] = converted
	}

	return msg
}

func toComponent(c wireComponent) *types.Component {
	tokens := make([]common.Address, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		tokens = append(tokens, common.HexToAddress(t))
	}
	return &types.Component{
		ID:         types.ComponentID(c.ID),
		Protocol:   c.Protocol,
		Tokens:     tokens,
		StaticAttr: c.StaticAttr,
		Balances:   make(map[common.Address]*big.Int),
	}
}

func isNullSentinel(id string) bool {
	return strings.Contains(strings.ToLower(id), strings.ToLower(nullAddressSentinel))
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
