package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "conv:"

// RedisStore keeps each session's log in a Redis list so conversation
// history survives restarts. Turns are JSON-encoded; the key carries a TTL
// refreshed on every append.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Session(_ context.Context, id string) (Log, error) {
	return &redisLog{client: s.client, key: redisKeyPrefix + id, ttl: s.ttl}, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

type redisLog struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func (l *redisLog) Append(ctx context.Context, t Turn) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, l.key, data)
	pipe.Expire(ctx, l.key, l.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (l *redisLog) Window(ctx context.Context, n int) ([]Turn, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	return l.rangeTurns(ctx, start, -1)
}

func (l *redisLog) Full(ctx context.Context) ([]Turn, error) {
	return l.rangeTurns(ctx, 0, -1)
}

func (l *redisLog) Reset(ctx context.Context) error {
	return l.client.Del(ctx, l.key).Err()
}

func (l *redisLog) rangeTurns(ctx context.Context, start, stop int64) ([]Turn, error) {
	raw, err := l.client.LRange(ctx, l.key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
