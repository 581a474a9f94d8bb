package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanCount is the COUNT hint passed to SCAN when listing keys.
const scanCount = 500

// RedisStore implements the Store interface on a Redis server. Every command
// maps onto the Redis command of the same name.
type RedisStore struct {
	rc *redis.Client
}

// NewRedisStore connects to the Redis server described by url
// (redis://[:password@]host:port/db) and verifies the connection.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rc := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{rc: rc}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rc *redis.Client) *RedisStore {
	return &RedisStore{rc: rc}
}

// wrongType maps Redis WRONGTYPE replies onto ErrWrongType.
func wrongType(err error) error {
	if err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %v", ErrWrongType, err)
	}
	return err
}

// nilable turns redis.Nil into a not-found result.
func nilable(value string, err error) (string, bool, error) {
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrongType(err)
	}
	return value, true, nil
}

func (s *RedisStore) LPush(ctx context.Context, key, value string) (int64, error) {
	n, err := s.rc.LPush(ctx, key, value).Result()
	return n, wrongType(err)
}

func (s *RedisStore) RPop(ctx context.Context, key string) (string, bool, error) {
	return nilable(s.rc.RPop(ctx, key).Result())
}

func (s *RedisStore) LRem(ctx context.Context, key, value string) (int64, error) {
	n, err := s.rc.LRem(ctx, key, 0, value).Result()
	return n, wrongType(err)
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	values, err := s.rc.LRange(ctx, key, start, stop).Result()
	return values, wrongType(err)
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.rc.LLen(ctx, key).Result()
	return n, wrongType(err)
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return wrongType(s.rc.HSet(ctx, key, field, value).Err())
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return nilable(s.rc.HGet(ctx, key, field).Result())
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	values, err := s.rc.HGetAll(ctx, key).Result()
	return values, wrongType(err)
}

func (s *RedisStore) HDel(ctx context.Context, key, field string) error {
	return wrongType(s.rc.HDel(ctx, key, field).Err())
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	return nilable(s.rc.Get(ctx, key).Result())
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.rc.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.rc.Incr(ctx, key).Result()
	return n, wrongType(err)
}

func (s *RedisStore) SAdd(ctx context.Context, key, member string) error {
	return wrongType(s.rc.SAdd(ctx, key, member).Err())
}

func (s *RedisStore) SRem(ctx context.Context, key, member string) error {
	return wrongType(s.rc.SRem(ctx, key, member).Err())
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rc.SMembers(ctx, key).Result()
	return members, wrongType(err)
}

// Keys walks the keyspace with SCAN rather than KEYS so large namespaces do
// not block the server.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.rc.Scan(ctx, 0, escapeGlob(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan keys %q: %w", prefix, err)
	}
	// SCAN may report a key more than once.
	sort.Strings(keys)
	return slices.Compact(keys), nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rc.Del(ctx, keys...).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.rc.Close()
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
