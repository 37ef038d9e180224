// Package priceref implements the reference price feed (C2): a pluggable
// capability object returning a current base/quote mid-price, selected at
// construction by a type tag rather than dispatched dynamically at runtime.
package priceref

import "context"

// Provider is the shared contract every reference price source satisfies.
// FetchPrice must be safe to call from the tick loop: it may suspend
// (network I/O) but must not block indefinitely past ctx's deadline.
type Provider interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// Tag names a provider implementation, set in configuration.
type Tag string

const (
	TagWebsocketTicker Tag = "websocket_ticker"
	TagOnChainOracle   Tag = "onchain_oracle"
)

// reversed wraps a Provider and inverts its price, for pairs whose upstream
// source quotes the inverse convention.
type reversed struct {
	inner Provider
}

func (r *reversed) FetchPrice(ctx context.Context) (float64, error) {
	p, err := r.inner.FetchPrice(ctx)
	if err != nil {
		return 0, err
	}
	if p == 0 {
		return 0, errZeroPrice
	}
	return 1 / p, nil
}

// WithReverse wraps p so FetchPrice returns its reciprocal, implementing the
// configured `reverse` flag without the provider needing to know about it.
func WithReverse(p Provider, reverse bool) Provider {
	if !reverse {
		return p
	}
	return &reversed{inner: p}
}
