// Package store provides the key-value primitives the job ledger persists to.
package store

import (
	"context"
	"errors"
)

// ErrWrongType is returned when a command is issued against a key holding a
// different kind of value (for example LPUSH on a hash).
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

// Store defines the key-value surface used by the ledger.
//
// Every method is individually atomic. Nothing composes them transactionally,
// so callers must tolerate interleaving between independent processes.
// Lookups of missing keys or fields are reported through the boolean result,
// never through an error.
type Store interface {
	// LPush prepends value to the list at key and returns the new length.
	LPush(ctx context.Context, key, value string) (int64, error)

	// RPop removes and returns the last (oldest) element of the list at key.
	RPop(ctx context.Context, key string) (string, bool, error)

	// LRem removes every occurrence of value from the list at key.
	LRem(ctx context.Context, key, value string) (int64, error)

	// LRange returns elements start..stop inclusive. Negative indexes count
	// from the end of the list, -1 being the last element.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LLen returns the length of the list at key.
	LLen(ctx context.Context, key string) (int64, error)

	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HDel(ctx context.Context, key, field string) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error

	// Incr increments the integer stored at key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key, member string) error
	SRem(ctx context.Context, key, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Keys returns every key starting with prefix. An empty prefix returns
	// all keys.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Del deletes the given keys. Deleting a missing key is a no-op.
	Del(ctx context.Context, keys ...string) error

	// Close releases any resources held by the store.
	Close() error
}
