package priceref

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ Provider = (*WebsocketTickerProvider)(nil)

// WebsocketTickerProvider maintains a persistent websocket subscription to a
// trade/ticker feed and serves the most recently observed mid-price.
// FetchPrice itself never blocks on the network: it reads the last value the
// background reader cached, erroring only if nothing has arrived yet or the
// cached value is older than staleAfter.
type WebsocketTickerProvider struct {
	url        string
	symbol     string
	staleAfter time.Duration
	dialer     *websocket.Dialer

	mu        sync.RWMutex
	lastPrice float64
	lastAt    time.Time
	connErr   error
}

// NewWebsocketTickerProvider starts the background reader goroutine against
// url, filtering ticker messages for symbol.
func NewWebsocketTickerProvider(ctx context.Context, url, symbol string, staleAfter time.Duration) *WebsocketTickerProvider {
	p := &WebsocketTickerProvider{
		url:        url,
		symbol:     symbol,
		staleAfter: staleAfter,
		dialer:     websocket.DefaultDialer,
	}
	go p.run(ctx)
	return p
}

func (p *WebsocketTickerProvider) run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
		if err != nil {
			p.setErr(fmt.Errorf("dial failed: %w", err))
			if !sleep(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		p.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
	}
}

type tickerMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func (p *WebsocketTickerProvider) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.setErr(fmt.Errorf("read failed: %w", err))
			return
		}

		var msg tickerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Symbol != p.symbol || msg.Price <= 0 {
			continue
		}

		p.mu.Lock()
		p.lastPrice = msg.Price
		p.lastAt = time.Now()
		p.connErr = nil
		p.mu.Unlock()
	}
}

// FetchPrice returns the most recently observed ticker price.
func (p *WebsocketTickerProvider) FetchPrice(ctx context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.lastAt.IsZero() {
		if p.connErr != nil {
			return 0, fmt.Errorf("no ticker price yet: %w", p.connErr)
		}
		return 0, fmt.Errorf("no ticker price received yet for %s", p.symbol)
	}
	if p.staleAfter > 0 && time.Since(p.lastAt) > p.staleAfter {
		return 0, fmt.Errorf("ticker price for %s is stale (last update %s ago)", p.symbol, time.Since(p.lastAt))
	}
	return p.lastPrice, nil
}

func (p *WebsocketTickerProvider) setErr(err error) {
	p.mu.Lock()
	p.connErr = err
	p.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
