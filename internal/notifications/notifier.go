// Package notifications carries post events between API instances over Redis
// pub/sub and pushes them to realtime feed subscribers.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"nokoroa/internal/events"

	"github.com/redis/go-redis/v9"
)

// Notifier is the Redis side of the feed: every instance publishes to and
// listens on one channel. A Notifier with a nil client does nothing.
type Notifier struct {
	rdb     *redis.Client
	channel string
}

func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, channel: events.FeedChannel}
}

// PublishFeed broadcasts an encoded post event to every instance.
func (n *Notifier) PublishFeed(ctx context.Context, payload []byte) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, n.channel, payload).Err()
}

// StartFeedSubscriber confirms the subscription, then relays payloads to
// onMessage in a goroutine until ctx ends.
func (n *Notifier) StartFeedSubscriber(ctx context.Context, onMessage func(payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, n.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", n.channel, err)
	}
	go n.relay(ctx, sub, onMessage)
	return nil
}

func (n *Notifier) relay(ctx context.Context, sub *redis.PubSub, onMessage func(string)) {
	defer func() { _ = sub.Close() }()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			deliver(onMessage, msg.Payload)
		}
	}
}

// deliver isolates a panicking handler so one bad event does not end the relay.
func deliver(onMessage func(string), payload string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("feed handler panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	onMessage(payload)
}
