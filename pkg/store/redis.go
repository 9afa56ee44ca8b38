package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ritzau/kube-playground/pkg/logging"
)

const (
	keyPrefix    = "kube-playground:snapshot:"
	pingAttempts = 5
	pingBackoff  = time.Second
)

// RedisStore keeps snapshots as plain string values under a common key
// prefix.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and waits for the server to answer a
// ping, retrying a few times before giving up.
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	var err error
	for i := 0; i < pingAttempts; i++ {
		if err = client.Ping(ctx).Err(); err == nil {
			logging.Info("connected to redis", "addr", addr, "db", db)
			return &RedisStore{client: client}, nil
		}
		logging.Warn("failed to connect to redis", "attempt", i+1, "addr", addr, "error", err)
		if i == pingAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			client.Close()
			return nil, ctx.Err()
		case <-time.After(pingBackoff):
		}
	}
	client.Close()
	return nil, fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", addr, pingAttempts, err)
}

func (s *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// List scans the key space incrementally rather than with KEYS.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
