package events

import "context"

// Broadcaster publishes raw payloads on the shared feed channel.
type Broadcaster interface {
	PublishFeed(ctx context.Context, payload []byte) error
}

// RedisPublisher forwards events to the realtime feed through Redis pub/sub.
type RedisPublisher struct {
	b Broadcaster
}

func NewRedisPublisher(b Broadcaster) *RedisPublisher {
	return &RedisPublisher{b: b}
}

func (p *RedisPublisher) Publish(ctx context.Context, e PostEvent) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	return p.b.PublishFeed(ctx, payload)
}

func (p *RedisPublisher) Close() error { return nil }
