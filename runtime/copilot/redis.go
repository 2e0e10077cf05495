package copilot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentgraph/engine/runtime/agent/telemetry"
)

// RedisStore implements Store against a Redis connection, mirroring the
// layering of the teacher's Pulse client: callers build a *redis.Client and
// hand it to New, receiving a typed interface that exposes only the
// operations this package needs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger telemetry.Logger
}

// Options configures a RedisStore.
type Options struct {
	// Redis is the connection backing session state. Required.
	Redis *redis.Client
	// TTL overrides DefaultTTL when non-zero.
	TTL time.Duration
	// Logger receives best-effort diagnostic logging. Defaults to a no-op.
	Logger telemetry.Logger
}

// New constructs a RedisStore. Returns an error if opts.Redis is nil.
func New(opts Options) (*RedisStore, error) {
	if opts.Redis == nil {
		return nil, errors.New("copilot: redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &RedisStore{client: opts.Redis, ttl: ttl, logger: logger}, nil
}

var _ Store = (*RedisStore)(nil)

func statusKey(sessionID string) string  { return fmt.Sprintf("copilot:session:%s:status", sessionID) }
func contentKey(sessionID string) string { return fmt.Sprintf("copilot:session:%s:content", sessionID) }

func (s *RedisStore) Create(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, statusKey(sessionID), string(StatusGenerating), s.ttl)
	pipe.Set(ctx, contentKey(sessionID), "", s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapUnavailable("copilot.create", err)
	}
	return nil
}

func (s *RedisStore) AppendContent(ctx context.Context, sessionID, chunk string) error {
	// Redis APPEND creates the key if absent, which would silently resurrect
	// an expired or never-created session; guard with an explicit existence
	// check so the ErrNotFound contract holds.
	exists, err := s.client.Exists(ctx, statusKey(sessionID)).Result()
	if err != nil {
		return wrapUnavailable("copilot.append_content", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if err := s.client.Append(ctx, contentKey(sessionID), chunk).Err(); err != nil {
		return wrapUnavailable("copilot.append_content", err)
	}
	// Append does not refresh a key's TTL; do so explicitly so a long-running
	// generation job doesn't expire mid-stream.
	if err := s.client.Expire(ctx, contentKey(sessionID), s.ttl).Err(); err != nil {
		return wrapUnavailable("copilot.append_content", err)
	}
	if err := s.client.Expire(ctx, statusKey(sessionID), s.ttl).Err(); err != nil {
		return wrapUnavailable("copilot.append_content", err)
	}
	return nil
}

func (s *RedisStore) Complete(ctx context.Context, sessionID string) error {
	return s.setStatus(ctx, sessionID, StatusCompleted)
}

func (s *RedisStore) Fail(ctx context.Context, sessionID, reason string) error {
	if err := s.client.Set(ctx, contentKey(sessionID), reason, s.ttl).Err(); err != nil {
		return wrapUnavailable("copilot.fail", err)
	}
	return s.setStatus(ctx, sessionID, StatusFailed)
}

func (s *RedisStore) setStatus(ctx context.Context, sessionID string, status Status) error {
	if err := s.client.Set(ctx, statusKey(sessionID), string(status), s.ttl).Err(); err != nil {
		return wrapUnavailable("copilot.set_status", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (State, error) {
	pipe := s.client.Pipeline()
	statusCmd := pipe.Get(ctx, statusKey(sessionID))
	contentCmd := pipe.Get(ctx, contentKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return State{}, wrapUnavailable("copilot.get", err)
	}

	status, err := statusCmd.Result()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, wrapUnavailable("copilot.get", err)
	}
	content, err := contentCmd.Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return State{}, wrapUnavailable("copilot.get", err)
	}
	return State{Status: Status(status), Content: content}, nil
}

// wrapUnavailable classifies a Redis failure as ErrUnavailable so the
// availability contract (fail fast, never degrade to inconsistent) is
// uniform regardless of which Redis command failed.
func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
