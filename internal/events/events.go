// Package events implements the event publisher (C9): a fire-and-forget
// typed-event publisher over a Redis pub/sub bus, rate-limited for price
// ticks.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Message types recognized on the bus. Consumers ignore unrecognized
// values; producers only ever emit these four.
const (
	MessageTypeNewInstance = "new_instance"
	MessageTypeHeartbeat   = "heartbeat"
	MessageTypePriceTick   = "price_tick"
	MessageTypeTradeEvent  = "trade_event"
)

// Status strings carried by a trade_event's data.status field.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Event is the envelope published to the bus channel:
// {message_type, timestamp_ms, data}.
type Event struct {
	MessageType string      `json:"message_type"`
	TimestampMs int64       `json:"timestamp_ms"`
	Data        interface{} `json:"data"`
}

// NewEvent stamps data with the current time and wraps it under messageType.
func NewEvent(messageType string, data interface{}) Event {
	return Event{
		MessageType: messageType,
		TimestampMs: time.Now().UnixMilli(),
		Data:        data,
	}
}

// NewInstanceData is Event.Data for a new_instance event.
type NewInstanceData struct {
	InstanceID string `json:"instance_id"`
	Network    string `json:"network"`
}

// HeartbeatData is Event.Data for a heartbeat event.
type HeartbeatData struct {
	InstanceID string `json:"instance_id"`
}

// PriceTickData is Event.Data for a price_tick event.
type PriceTickData struct {
	InstanceID string  `json:"instance_id"`
	Reference  float64 `json:"reference"`
	PoolMedian float64 `json:"pool_median"`
}

// TradeEventData is Event.Data for a trade_event event. Status is always
// StatusSuccess or StatusFailed; AmountIn/AmountOut are raw on-chain
// integers rendered as decimal strings.
type TradeEventData struct {
	InstanceID string  `json:"instance_id"`
	TxHash     string  `json:"tx_hash,omitempty"`
	Status     string  `json:"status"`
	AmountIn   string  `json:"amount_in,omitempty"`
	AmountOut  string  `json:"amount_out,omitempty"`
	ProfitBps  float64 `json:"profit_bps,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Publisher is satisfied by the live bus and by test doubles.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	PublishRateLimited(ctx context.Context, e Event) error
	Ping(ctx context.Context) error
}

var _ Publisher = (*Bus)(nil)

// Bus publishes to a single Redis pub/sub channel. PublishRateLimited
// throttles price ticks to at most one per MinPublishTimeframe, silently
// dropping ticks inside the window — rate limiting, not backpressure.
type Bus struct {
	client  *redis.Client
	channel string
	limiter *rate.Limiter
}

// New connects to redisURL (e.g. "redis://host:6379/0") and binds a
// publisher to channel, rate-limiting at most one tick per
// minPublishTimeframe.
func New(redisURL, channel string, minPublishTimeframe time.Duration) (*Bus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("events: invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	limit := rate.Inf
	if minPublishTimeframe > 0 {
		limit = rate.Every(minPublishTimeframe)
	}

	return &Bus{
		client:  client,
		channel: channel,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Ping verifies the bus is reachable. Called at startup when publishing is
// enabled; the supervisor refuses to start if this fails.
func (b *Bus) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("events: bus unreachable: %w", err)
	}
	return nil
}

// Publish sends e unconditionally (fire-and-forget: errors are returned and
// never retried). The call waits for the Redis PUBLISH round trip.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("events: failed to publish: %w", err)
	}
	return nil
}

// PublishRateLimited publishes e only if the rate limiter currently has a
// token available, dropping it silently otherwise. Used for price_tick.
func (b *Bus) PublishRateLimited(ctx context.Context, e Event) error {
	if !b.limiter.Allow() {
		return nil
	}
	return b.Publish(ctx, e)
}

// Close releases the underlying Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}
