package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
)

// Value kinds held by an entry.
const (
	kindString = "string"
	kindList   = "list"
	kindHash   = "hash"
	kindSet    = "set"
)

// entry is the stored form of one key for the file and bolt backends.
type entry struct {
	Kind string            `json:"kind"`
	Str  string            `json:"str,omitempty"`
	List []string          `json:"list,omitempty"`
	Hash map[string]string `json:"hash,omitempty"`
	Set  map[string]bool   `json:"set,omitempty"`
}

// empty reports whether the entry holds nothing and its key should be dropped.
func (e *entry) empty() bool {
	if e == nil {
		return true
	}
	switch e.Kind {
	case kindList:
		return len(e.List) == 0
	case kindHash:
		return len(e.Hash) == 0
	case kindSet:
		return len(e.Set) == 0
	}
	return false
}

func (e *entry) clone() *entry {
	out := &entry{Kind: e.Kind, Str: e.Str}
	if e.List != nil {
		out.List = append([]string(nil), e.List...)
	}
	if e.Hash != nil {
		out.Hash = make(map[string]string, len(e.Hash))
		for k, v := range e.Hash {
			out.Hash[k] = v
		}
	}
	if e.Set != nil {
		out.Set = make(map[string]bool, len(e.Set))
		for k := range e.Set {
			out.Set[k] = true
		}
	}
	return out
}

// expect returns e, a fresh entry of kind if e is nil, or ErrWrongType.
func expect(e *entry, kind string) (*entry, error) {
	if e == nil {
		return &entry{Kind: kind}, nil
	}
	if e.Kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

// keyspace is implemented by backends that store whole entries per key.
// update stores the returned entry, or deletes the key when it is empty.
type keyspace interface {
	view(key string, fn func(e *entry) error) error
	update(key string, fn func(e *entry) (*entry, error)) error
	scan(prefix string) ([]string, error)
	remove(keys []string) error
}

// commands implements Store on top of a keyspace.
type commands struct {
	ks keyspace
}

func (c commands) LPush(ctx context.Context, key, value string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := c.ks.update(key, func(e *entry) (*entry, error) {
		e, err := expect(e, kindList)
		if err != nil {
			return nil, err
		}
		e.List = append([]string{value}, e.List...)
		n = int64(len(e.List))
		return e, nil
	})
	return n, err
}

func (c commands) RPop(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		value string
		found bool
	)
	err := c.ks.update(key, func(e *entry) (*entry, error) {
		if e == nil {
			return nil, nil
		}
		if e.Kind != kindList {
			return nil, ErrWrongType
		}
		if len(e.List) > 0 {
			last := len(e.List) - 1
			value, found = e.List[last], true
			e.List = e.List[:last]
		}
		return e, nil
	})
	return value, found, err
}

func (c commands) LRem(ctx context.Context, key, value string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var removed int64
	err := c.ks.update(key, func(e *entry) (*entry, error) {
		if e == nil {
			return nil, nil
		}
		if e.Kind != kindList {
			return nil, ErrWrongType
		}
		kept := e.List[:0]
		for _, v := range e.List {
			if v == value {
				removed++
				continue
			}
			kept = append(kept, v)
		}
		e.List = kept
		return e, nil
	})
	return removed, err
}

func (c commands) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := c.ks.view(key, func(e *entry) error {
		if e == nil {
			return nil
		}
		if e.Kind != kindList {
			return ErrWrongType
		}
		from, to, ok := listRange(int64(len(e.List)), start, stop)
		if !ok {
			return nil
		}
		out = append([]string(nil), e.List[from:to+1]...)
		return nil
	})
	return out, err
}

func (c commands) LLen(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := c.ks.view(key, func(e *entry) error {
		if e == nil {
			return nil
		}
		if e.Kind != kindList {
			return ErrWrongType
		}
		n = int64(len(e.List))
		return nil
	})
	return n, err
}

func (c commands) HSet(ctx context.Context, key, field, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ks.update(key, func(e *entry) (*entry, error) {
		e, err := expect(e, kindHash)
		if err != nil {
			return nil, err
		}
		if e.Hash == nil {
			e.Hash = make(map[string]string)
		}
		e.Hash[field] = value
		return e, nil
	})
}

func (c commands) HGet(ctx context.Context, key, field string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		value string
		found bool
	)
	err := c.ks.view(key, func(e *entry) error {
		if e == nil {
			return nil
		}
		if e.Kind != kindHash {
			return ErrWrongType
		}
		value, found = e.Hash[field]
		return nil
	})
	return value, found, err
}

func (c commands) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	err := c.ks.view(key, func(e *entry) error {
		if e == nil {
			return nil
		}
		if e.Kind != kindHash {
			return ErrWrongType
		}
		for k, v := range e.Hash {
			out[k] = v
		}
		return nil
	})
	return out, err
}

func (c commands) HDel(ctx context.Context, key, field string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ks.update(key, func(e *entry) (*entry, error) {
		if e == nil {
			return nil, nil
		}
		if e.Kind != kindHash {
			return nil, ErrWrongType
		}
		delete(e.Hash, field)
		return e, nil
	})
}

func (c commands) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	var (
		value string
		found bool
	)
	err := c.ks.view(key, func(e *entry) error {
		if e == nil {
			return nil
		}
		if e.Kind != kindString {
			return ErrWrongType
		}
		value, found = e.Str, true
		return nil
	})
	return value, found, err
}

func (c commands) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ks.update(key, func(e *entry) (*entry, error) {
		return &entry{Kind: kindString, Str: value}, nil
	})
}

func (c commands) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := c.ks.update(key, func(e *entry) (*entry, error) {
		e, err := expect(e, kindString)
		if err != nil {
			return nil, err
		}
		if e.Str != "" {
			current, err := strconv.ParseInt(e.Str, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value at %s is not an integer: %w", key, err)
			}
			n = current
		}
		n++
		e.Str = strconv.FormatInt(n, 10)
		return e, nil
	})
	return n, err
}

func (c commands) SAdd(ctx context.Context, key, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ks.update(key, func(e *entry) (*entry, error) {
		e, err := expect(e, kindSet)
		if err != nil {
			return nil, err
		}
		if e.Set == nil {
			e.Set = make(map[string]bool)
		}
		e.Set[member] = true
		return e, nil
	})
}

func (c commands) SRem(ctx context.Context, key, member string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.ks.update(key, func(e *entry) (*entry, error) {
		if e == nil {
			return nil, nil
		}
		if e.Kind != kindSet {
			return nil, ErrWrongType
		}
		delete(e.Set, member)
		return e, nil
	})
}

func (c commands) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := c.ks.view(key, func(e *entry) error {
		if e == nil {
			return nil
		}
		if e.Kind != kindSet {
			return ErrWrongType
		}
		for member := range e.Set {
			out = append(out, member)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (c commands) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.ks.scan(prefix)
}

func (c commands) Del(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.ks.remove(keys)
}

// listRange clamps a Redis-style inclusive range to a list of length n.
func listRange(n, start, stop int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
