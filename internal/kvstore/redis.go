package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 5

// txPipeliner is satisfied by both *redis.Client and *redis.Tx.
type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// Redis stores each node as a string key and keeps one sorted set per parent
// path listing its children by insertion sequence.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed node store. Keys are namespaced by prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "kv"
	}
	return &Redis{client: client, prefix: prefix}
}

var _ Store = (*Redis)(nil)

func (r *Redis) nodeKey(path string) string  { return r.prefix + ":node:" + path }
func (r *Redis) indexKey(path string) string { return r.prefix + ":idx:" + path }
func (r *Redis) seqKey() string              { return r.prefix + ":seq" }

// Get returns the value stored at path.
func (r *Redis) Get(ctx context.Context, path string) (json.RawMessage, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.Get(ctx, r.nodeKey(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return json.RawMessage(raw), nil
}

// Children returns the direct children of path that hold a value, in
// insertion order.
func (r *Redis) Children(ctx context.Context, path string) ([]Node, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	keys, err := r.client.ZRange(ctx, r.indexKey(path), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	nodeKeys := make([]string, len(keys))
	for i, k := range keys {
		nodeKeys[i] = r.nodeKey(Join(path, k))
	}
	values, err := r.client.MGet(ctx, nodeKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	nodes := make([]Node, 0, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// intermediate path segment with no value of its own
			continue
		}
		nodes = append(nodes, Node{Key: keys[i], Value: json.RawMessage(s)})
	}
	return nodes, nil
}

// Set replaces the value at path.
func (r *Redis) Set(ctx context.Context, path string, value any) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	if err := r.write(ctx, r.client, path, raw); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// write stores raw at path and indexes path and its ancestors under their
// parents, keeping the first insertion position of each.
func (r *Redis) write(ctx context.Context, c txPipeliner, path string, raw []byte) error {
	seq, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.nodeKey(path), raw, 0)
		for p := path; ; {
			parent, key := split(p)
			if parent == "" {
				break
			}
			pipe.ZAddNX(ctx, r.indexKey(parent), redis.Z{Score: float64(seq), Member: key})
			p = parent
		}
		return nil
	})
	return err
}

// Update merges the top-level keys of partial into the object at path,
// creating it when missing. The read-merge-write runs under WATCH.
func (r *Redis) Update(ctx context.Context, path string, partial map[string]any) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	if partial == nil {
		return ErrNotObject
	}
	patch := make(map[string]json.RawMessage, len(partial))
	for k, v := range partial {
		raw, err := encode(v)
		if err != nil {
			return err
		}
		patch[k] = raw
	}

	key := r.nodeKey(path)
	txf := func(tx *redis.Tx) error {
		current := map[string]json.RawMessage{}
		existing, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(existing, &current); err != nil {
				return fmt.Errorf("%w: stored value is not an object", ErrNotObject)
			}
		}
		for k, v := range patch {
			current[k] = v
		}
		merged, err := json.Marshal(current)
		if err != nil {
			return err
		}
		return r.write(ctx, tx, path, merged)
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("update %s: %w", path, err)
	}
	return fmt.Errorf("update %s: %w", path, redis.TxFailedErr)
}

// Remove deletes path and everything below it.
func (r *Redis) Remove(ctx context.Context, path string) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	var keys []string
	var walk func(p string) error
	walk = func(p string) error {
		keys = append(keys, r.nodeKey(p), r.indexKey(p))
		children, err := r.client.ZRange(ctx, r.indexKey(p), 0, -1).Result()
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(Join(p, c)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		if parent, key := split(path); parent != "" {
			pipe.ZRem(ctx, r.indexKey(parent), key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Push stores value under a generated child id of path and returns the id.
func (r *Redis) Push(ctx context.Context, path string, value any) (string, error) {
	path, err := Clean(path)
	if err != nil {
		return "", err
	}
	id := newPushID()
	if err := r.Set(ctx, Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}
