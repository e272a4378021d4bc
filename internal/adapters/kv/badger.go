package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/sitestats/pkg/logger"
)

const (
	badgerKeyPrefix        = "k/"
	badgerCollectionPrefix = "c/"
)

// Badger is an embedded, on-disk Store.
type Badger struct {
	db         *badger.DB
	maxRetries int
	log        logger.Logger
}

// OpenBadger opens (or creates) a badger database at path.
func OpenBadger(path string, opts ...Option) (*Badger, error) {
	o := applyOptions(opts)
	bo := badger.DefaultOptions(path).WithLogger(badgerLogger{log: o.log})
	if o.inMemory {
		bo = bo.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("kv: open badger at %q: %w", path, err)
	}
	return &Badger{db: db, maxRetries: o.maxRetries, log: o.log}, nil
}

func plainKey(key string) []byte {
	return []byte(badgerKeyPrefix + key)
}

func collectionPrefix(collection string) []byte {
	return []byte(badgerCollectionPrefix + collection + "/")
}

func recordKey(collection, id string) []byte {
	return append(collectionPrefix(collection), id...)
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(plainKey(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, b.wrap("get", key, err)
	}
	return out, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(plainKey(key), value)
	})
	return b.wrap("set", key, err)
}

func (b *Badger) Put(_ context.Context, collection, id string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(collection, id), value)
	})
	return b.wrap("put", collection+"/"+id, err)
}

// Update retries on badger.ErrConflict, which is raised when another
// transaction committed a write to the same record first.
func (b *Badger) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	key := recordKey(collection, id)
	for attempt := 0; attempt < b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := b.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
			}
			if err != nil {
				return err
			}
			cur, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				return err
			}
			return txn.Set(key, next)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return b.wrap("update", collection+"/"+id, err)
		}
		return err
	}
	return fmt.Errorf("%w: %s/%s after %d attempts", ErrConflict, collection, id, b.maxRetries)
}

func (b *Badger) Scan(ctx context.Context, collection string, fn ScanFunc) error {
	prefix := collectionPrefix(collection)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			if err := item.Value(func(v []byte) error { return fn(id, v) }); err != nil {
				return err
			}
		}
		return nil
	})
	return b.wrap("scan", collection, err)
}

func (b *Badger) Drop(_ context.Context, collection string) error {
	prefix := collectionPrefix(collection)
	var keys [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return b.wrap("drop", collection, err)
	}

	wb := b.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return b.wrap("drop", collection, err)
		}
	}
	return b.wrap("drop", collection, wb.Flush())
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return fmt.Errorf("kv: badger %s %s: %w", op, target, err)
}

// badgerLogger routes badger's own diagnostics through the service logger.
type badgerLogger struct {
	log logger.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}
