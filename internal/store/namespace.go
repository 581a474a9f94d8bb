package store

import (
	"context"
	"strings"
)

// Namespaced scopes every key of an underlying store under "<ns>:".
// Several ledgers can share one Redis server or bolt file this way.
type Namespaced struct {
	inner  Store
	prefix string
}

// WithNamespace wraps inner so that all keys live under ns. An empty ns
// returns inner unchanged.
func WithNamespace(inner Store, ns string) Store {
	if ns == "" {
		return inner
	}
	return &Namespaced{inner: inner, prefix: ns + ":"}
}

func (n *Namespaced) key(k string) string { return n.prefix + k }

func (n *Namespaced) LPush(ctx context.Context, key, value string) (int64, error) {
	return n.inner.LPush(ctx, n.key(key), value)
}

func (n *Namespaced) RPop(ctx context.Context, key string) (string, bool, error) {
	return n.inner.RPop(ctx, n.key(key))
}

func (n *Namespaced) LRem(ctx context.Context, key, value string) (int64, error) {
	return n.inner.LRem(ctx, n.key(key), value)
}

func (n *Namespaced) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return n.inner.LRange(ctx, n.key(key), start, stop)
}

func (n *Namespaced) LLen(ctx context.Context, key string) (int64, error) {
	return n.inner.LLen(ctx, n.key(key))
}

func (n *Namespaced) HSet(ctx context.Context, key, field, value string) error {
	return n.inner.HSet(ctx, n.key(key), field, value)
}

func (n *Namespaced) HGet(ctx context.Context, key, field string) (string, bool, error) {
	return n.inner.HGet(ctx, n.key(key), field)
}

func (n *Namespaced) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return n.inner.HGetAll(ctx, n.key(key))
}

func (n *Namespaced) HDel(ctx context.Context, key, field string) error {
	return n.inner.HDel(ctx, n.key(key), field)
}

func (n *Namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.inner.Get(ctx, n.key(key))
}

func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.key(key), value)
}

func (n *Namespaced) Incr(ctx context.Context, key string) (int64, error) {
	return n.inner.Incr(ctx, n.key(key))
}

func (n *Namespaced) SAdd(ctx context.Context, key, member string) error {
	return n.inner.SAdd(ctx, n.key(key), member)
}

func (n *Namespaced) SRem(ctx context.Context, key, member string) error {
	return n.inner.SRem(ctx, n.key(key), member)
}

func (n *Namespaced) SMembers(ctx context.Context, key string) ([]string, error) {
	return n.inner.SMembers(ctx, n.key(key))
}

// Keys returns matching keys with the namespace prefix stripped.
func (n *Namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.Keys(ctx, n.key(prefix))
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

func (n *Namespaced) Del(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = n.key(k)
	}
	return n.inner.Del(ctx, scoped...)
}

func (n *Namespaced) Close() error {
	return n.inner.Close()
}
