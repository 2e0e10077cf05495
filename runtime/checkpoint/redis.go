package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisReader implements Reader by reading the checkpoint blob a GraphRuntime
// writes to Redis under its own key scheme. The engine never writes through
// this reader; it only observes state the runtime itself persisted.
type RedisReader struct {
	client *redis.Client
	// KeyFunc builds the Redis key for a graph/config pair. Defaults to
	// "checkpoint:{graphID}:{config}".
	KeyFunc func(graphID, config string) string
}

// NewRedisReader constructs a RedisReader over client using the default key
// scheme.
func NewRedisReader(client *redis.Client) *RedisReader {
	return &RedisReader{
		client: client,
		KeyFunc: func(graphID, config string) string {
			return fmt.Sprintf("checkpoint:%s:%s", graphID, config)
		},
	}
}

// GetState reads and deserializes the snapshot stored for graphID/config. A
// missing key is reported as an empty Snapshot with no error: a graph that
// has never checkpointed is not suspended at an interrupt, which is not a
// failure condition for this read path.
func (r *RedisReader) GetState(ctx context.Context, graphID, config string) (Snapshot, error) {
	raw, err := r.client.Get(ctx, r.KeyFunc(graphID, config)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("checkpoint: redis get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: decode snapshot: %w", err)
	}
	return snap, nil
}
