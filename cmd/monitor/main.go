// Command monitor is a read-only observer: it subscribes to the agent's
// Redis event channel and prints each event as it arrives, the same
// "drain a channel of status lines" shape the original single-strategy
// client used for its report channel, retargeted at a shared bus so
// multiple monitors can watch one running maker instance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowmint/mmagent/configs"
	"github.com/flowmint/mmagent/internal/events"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := configs.LoadConfig("configs/config.yml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.Events.Enabled {
		return fmt.Errorf("events are disabled in config.yml: nothing to monitor")
	}

	opt, err := redis.ParseURL(cfg.Events.RedisURL)
	if err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := client.Subscribe(ctx, cfg.Events.Channel)
	defer sub.Close()

	fmt.Printf("monitor: watching %q on channel %q\n", cfg.Pair.Tag, cfg.Events.Channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			printEvent(msg.Payload)
		}
	}
}

func printEvent(payload string) {
	var e events.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		fmt.Printf("monitor: malformed event: %v\n", err)
		return
	}
	ts := time.UnixMilli(e.TimestampMs)
	fmt.Printf("[%s] %s %+v\n", ts.Format("15:04:05"), e.MessageType, e.Data)
}
