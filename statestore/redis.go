package statestore

import (
	"bytes"
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekemper/leadgen/errors"
)

// RedisStore implements Store on top of a Redis instance so that multiple
// service processes observe one truth.
type RedisStore struct {
	rc *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}
	return &RedisStore{rc: rc}, nil
}

// NewRedisStoreFromClient wraps an existing client (useful for tests).
func NewRedisStoreFromClient(rc *redis.Client) *RedisStore {
	return &RedisStore{rc: rc}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rc.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(ErrKeyMissing, "key %s", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get key %s", key)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rc.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to set key %s", key)
	}
	return nil
}

// CompareAndSwap uses WATCH/MULTI optimistic locking. A concurrent write to
// the key between read and commit aborts the transaction, which is reported
// as swapped=false rather than an error so callers can re-read and retry.
func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, expect, next []byte, ttl time.Duration) (bool, error) {
	var swapped bool

	err := s.rc.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			cur = nil
		} else if err != nil {
			return err
		}

		if !bytes.Equal(cur, expect) {
			return nil // value moved underneath us; no swap
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "compare-and-swap failed for key %s", key)
	}
	return swapped, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rc.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete key %s", key)
	}
	return nil
}

func (s *RedisStore) Push(ctx context.Context, queue string, value []byte) error {
	if err := s.rc.RPush(ctx, queue, value).Err(); err != nil {
		return errors.Wrapf(err, "failed to push to queue %s", queue)
	}
	return nil
}

func (s *RedisStore) Pop(ctx context.Context, queue string) ([]byte, error) {
	val, err := s.rc.LPop(ctx, queue).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pop from queue %s", queue)
	}
	return val, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rc.Close()
}
