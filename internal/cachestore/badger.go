package cachestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/dgraph-io/badger/v4"
)

// Badger stores entries in a badger database.
type Badger struct {
	db       *badger.DB
	inMemory bool
}

// OpenBadger opens a persistent store at path, or an in-memory one for
// config.CacheMemoryPath.
func OpenBadger(path string) (*Badger, error) {
	inMemory := path == "" || path == config.CacheMemoryPath
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %q: %w", path, err)
	}
	return &Badger{db: db, inMemory: inMemory}, nil
}

func (b *Badger) Name() string               { return "badger" }
func (b *Badger) SupportsRangeQueries() bool { return true }

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *Badger) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *Badger) Scan(ctx context.Context, prefix string, fn ScanFunc) error {
	p := []byte(prefix)
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = p
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.KeyCopy(nil))
			val, err := item.ValueCopy(nil)
			if err := fn(key, val, err); err != nil {
				return err
			}
		}
		return nil
	})
}

// Compact runs value-log GC until badger reports nothing left to rewrite.
func (b *Badger) Compact() error {
	if b.inMemory {
		return nil
	}
	for {
		err := b.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (b *Badger) Close() error { return b.db.Close() }
