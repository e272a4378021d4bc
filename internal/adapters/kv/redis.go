package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store shared by every process pointed at the same server.
// Each record is its own string key and a set per collection indexes the
// record ids, so an update only conflicts with writers of the same record.
// Plain keys are strings.
type Redis struct {
	client     *redis.Client
	prefix     string
	maxRetries int
	scanCount  int64
}

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, cfg RedisConfig, opts ...Option) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kv: ping redis at %s: %w", cfg.Addr, err)
	}
	return NewRedis(client, opts...), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, opts ...Option) *Redis {
	o := applyOptions(opts)
	return &Redis{
		client:     client,
		prefix:     o.prefix,
		maxRetries: o.maxRetries,
		scanCount:  o.scanCount,
	}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return "k:" + key
	}
	return r.prefix + ":k:" + key
}

func (r *Redis) ns(kind string) string {
	if r.prefix == "" {
		return kind + ":"
	}
	return r.prefix + ":" + kind + ":"
}

func (r *Redis) record(collection, id string) string {
	return r.ns("c") + collection + ":" + id
}

func (r *Redis) index(collection string) string {
	return r.ns("i") + collection
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, r.wrap("get", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	return r.wrap("set", key, r.client.Set(ctx, r.key(key), value, 0).Err())
}

func (r *Redis) Put(ctx context.Context, collection, id string, value []byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.record(collection, id), value, 0)
		pipe.SAdd(ctx, r.index(collection), id)
		return nil
	})
	return r.wrap("put", collection+"/"+id, err)
}

// Update uses WATCH/MULTI on the record key and retries when another client
// wrote the same record between the read and the write.
func (r *Redis) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	key := r.record(collection, id)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
		}
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return r.wrap("update", collection+"/"+id, err)
		}
		return err
	}
	return fmt.Errorf("%w: %s/%s after %d attempts", ErrConflict, collection, id, r.maxRetries)
}

// Scan walks the collection index with SSCAN and loads each batch with MGET.
// Ids whose record is already gone are skipped.
func (r *Redis) Scan(ctx context.Context, collection string, fn ScanFunc) error {
	idx := r.index(collection)
	var cursor uint64
	for {
		ids, next, err := r.client.SScan(ctx, idx, cursor, "", r.scanCount).Result()
		if err != nil {
			return r.wrap("scan", collection, err)
		}
		if len(ids) > 0 {
			keys := make([]string, len(ids))
			for i, id := range ids {
				keys[i] = r.record(collection, id)
			}
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return r.wrap("scan", collection, err)
			}
			for i, v := range values {
				raw, ok := v.(string)
				if !ok {
					continue
				}
				if err := fn(ids[i], []byte(raw)); err != nil {
					return err
				}
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Drop deletes the collection batch by batch. Each batch removes the records
// and their index entries together, so a record put while dropping stays
// whole. The scan restarts after every removal since removed members shift
// the cursor.
func (r *Redis) Drop(ctx context.Context, collection string) error {
	idx := r.index(collection)
	var cursor uint64
	for {
		ids, next, err := r.client.SScan(ctx, idx, cursor, "", r.scanCount).Result()
		if err != nil {
			return r.wrap("drop", collection, err)
		}
		if len(ids) > 0 {
			keys := make([]string, len(ids))
			members := make([]any, len(ids))
			for i, id := range ids {
				keys[i] = r.record(collection, id)
				members[i] = id
			}
			_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, keys...)
				pipe.SRem(ctx, idx, members...)
				return nil
			})
			if err != nil {
				return r.wrap("drop", collection, err)
			}
			cursor = 0
			continue
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return fmt.Errorf("kv: redis %s %s: %w", op, target, err)
}
