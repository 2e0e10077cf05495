package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/agentgraph/engine/runtime/agent/telemetry"
)

const defaultBuffer = 64

// RedisBus implements Bus over Redis pub/sub. Each user gets its own
// channel, "notify:user:{id}", mirroring the per-session stream naming the
// teacher's Pulse client uses for runtime events.
type RedisBus struct {
	client *redis.Client
	buffer int
	logger telemetry.Logger
}

var _ Bus = (*RedisBus)(nil)

// Options configures a RedisBus.
type Options struct {
	// Redis is the connection backing pub/sub. Required.
	Redis *redis.Client
	// Buffer sizes each subscriber's event channel. Defaults to 64.
	Buffer int
	// Logger receives best-effort delivery-failure logging. Defaults to a
	// no-op.
	Logger telemetry.Logger
}

// New constructs a RedisBus. Returns an error if opts.Redis is nil.
func New(opts Options) (*RedisBus, error) {
	if opts.Redis == nil {
		return nil, fmt.Errorf("notify: redis client is required")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &RedisBus{client: opts.Redis, buffer: buffer, logger: logger}, nil
}

func channelName(userID string) string { return fmt.Sprintf("notify:user:%s", userID) }

// Publish marshals event and publishes it to userID's channel. A publish
// failure is logged, not returned: per the NotificationBus contract, a
// missed cross-session signal never fails the operation that triggered it.
func (b *RedisBus) Publish(ctx context.Context, userID string, event Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn(ctx, "notify: marshal event failed", "user_id", userID, "error", err)
		return
	}
	if err := b.client.Publish(ctx, channelName(userID), raw).Err(); err != nil {
		b.logger.Warn(ctx, "notify: publish failed", "user_id", userID, "error", err)
	}
}

// Subscribe opens a Redis pub/sub subscription on userID's channel and
// decodes incoming messages into Event values on the returned channel.
func (b *RedisBus) Subscribe(ctx context.Context, userID string) (<-chan Event, context.CancelFunc, error) {
	pubsub := b.client.Subscribe(ctx, channelName(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("notify: subscribe: %w", err)
	}

	out := make(chan Event, b.buffer)
	runCtx, cancel := context.WithCancel(ctx)
	go b.consume(runCtx, pubsub, out)

	cancelFunc := func() {
		cancel()
		_ = pubsub.Close()
	}
	return out, cancelFunc, nil
}

func (b *RedisBus) consume(ctx context.Context, pubsub *redis.PubSub, out chan<- Event) {
	defer close(out)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn(ctx, "notify: decode event failed", "error", err)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close is a no-op: it does not close the underlying Redis client, whose
// lifecycle belongs to the caller that passed it in.
func (b *RedisBus) Close(ctx context.Context) error { return nil }
