// Package cache implements the protocol cache (C3): a single-writer,
// concurrent-reader index of live pool state, mutated only by stream
// deltas.
package cache

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/flowmint/mmagent/internal/stream"
	"github.com/flowmint/mmagent/pkg/types"
)

// Cache is safe for concurrent use: ApplyMessage must be called from a
// single goroutine (the tick loop), while ListComponents, SpotPrice, and
// Simulate may be called concurrently from any goroutine.
type Cache struct {
	mu         sync.RWMutex
	components map[types.ComponentID]*types.Component
	states     map[types.ComponentID]types.ProtocolState
}

// New returns an empty cache, as constructed during supervisor startup.
func New() *Cache {
	return &Cache{
		components: make(map[types.ComponentID]*types.Component),
		states:     make(map[types.ComponentID]types.ProtocolState),
	}
}

// ApplyMessage applies one stream message atomically: remove, then upsert,
// then apply state deltas, then update balances. Must be serialized by the
// caller (single writer invariant).
func (c *Cache) ApplyMessage(msg stream.StreamMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range msg.RemovedComponents {
		delete(c.components, id)
		delete(c.states, id)
	}

	for _, comp := range msg.NewComponents {
		c.components[comp.ID] = comp
	}
	for _, comp := range msg.UpdatedComponents {
		c.components[comp.ID] = comp
	}

	for id, state := range msg.StateDeltas {
		c.states[id] = state
	}

	for id, balances := range msg.BalanceDeltas {
		comp, ok := c.components[id]
		if !ok {
			continue
		}
		if comp.Balances == nil {
			comp.Balances = make(map[common.Address]*big.Int)
		}
		for token, amount := range balances {
			comp.Balances[token] = amount
		}
	}
}

// ListComponents returns a snapshot slice of every tracked component.
func (c *Cache) ListComponents() []*types.Component {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*types.Component, 0, len(c.components))
	for _, comp := range c.components {
		out = append(out, comp)
	}
	return out
}

// SpotPrice returns the marginal price of tokenA in tokenB for the named
// component.
func (c *Cache) SpotPrice(id types.ComponentID, tokenA, tokenB common.Address) (float64, error) {
	c.mu.RLock()
	state, ok := c.states[id]
	c.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("no state cached for component %s", id)
	}
	return state.SpotPrice(tokenA, tokenB)
}

// Simulate clones the component's cached state and simulates a swap against
// the clone; the shared cached state is never mutated.
func (c *Cache) Simulate(id types.ComponentID, amountIn *big.Int, tokenIn, tokenOut common.Address) (types.SimResult, error) {
	c.mu.RLock()
	state, ok := c.states[id]
	c.mu.RUnlock()
	if !ok {
		return types.SimResult{}, fmt.Errorf("no state cached for component %s", id)
	}

	clone := state.Clone()
	return clone.GetAmountOut(amountIn, tokenIn, tokenOut)
}

// Component looks up one component by id, for callers (e.g. the inventory
// manager) that need its static attributes without a full SpotPrice/Simulate
// round trip.
func (c *Cache) Component(id types.ComponentID) (*types.Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	comp, ok := c.components[id]
	return comp, ok
}
