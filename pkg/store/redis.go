package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thuduc/fan-out-fan-in/pkg/errors"
)

// RedisStore implements Store on top of a single *redis.Client, handling
// both the KV/hash operations and the two completion streams.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore parses rawURL (e.g. "redis://localhost:6379/0") and
// connects, verifying reachability with a PING before returning.
func NewRedisStore(ctx context.Context, rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "connect to redis")
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an already-constructed client, primarily
// for tests run against miniredis or similar.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", errors.New(errors.ErrCodeValidation, "key not found: %s", key)
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "get %s", key)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "set %s", key)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeInternal, err, "exists %s", key)
	}
	return n > 0, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "delete %s", key)
	}
	return nil
}

func (s *RedisStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	if err := s.client.HSet(ctx, key, values).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "hset %s", key)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "hgetall %s", key)
	}
	return m, nil
}

func (s *RedisStore) Publish(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "publish to %s", stream)
	}
	return id, nil
}

func (s *RedisStore) EnsureConsumerGroup(ctx context.Context, stream, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.Wrap(errors.ErrCodeInternal, err, "create consumer group %s on %s", group, stream)
	}
	return nil
}

func (s *RedisStore) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	res, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read group %s on %s", group, stream)
	}

	var out []Message
	for _, xs := range res {
		for _, entry := range xs.Messages {
			values := make(map[string]string, len(entry.Values))
			for k, v := range entry.Values {
				values[k] = stringifyField(v)
			}
			out = append(out, Message{ID: entry.ID, Values: values})
		}
	}
	return out, nil
}

func (s *RedisStore) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "ack %v on %s", ids, stream)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// stringifyField normalizes the heterogeneous types go-redis can hand back
// for a stream field (string, []byte, int64, float64) into a string.
func stringifyField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
