// ABOUTME: Badger-backed transactional key/value store used for local and test clients
// ABOUTME: Maps badger conflict and missing-key errors onto the store sentinels

package charm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/harperreed/agencyops/store"
)

// localKV runs store transactions directly on a badger database, so concurrent
// writers get badger's optimistic conflict detection.
type localKV struct {
	db *badger.DB
}

func openLocalKV(dir string) (*localKV, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return &localKV{db: db}, nil
}

func (l *localKV) update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := l.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("badger commit: %w", store.ErrConflict)
	}
	return err
}

func (l *localKV) view(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
}

func (l *localKV) keys() ([][]byte, error) {
	var keys [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

func (l *localKV) reset() error {
	return l.db.DropAll()
}

func (l *localKV) close() error {
	return l.db.Close()
}

type badgerTx struct {
	txn *badger.Txn
}

func (b *badgerTx) Get(key []byte) ([]byte, error) {
	item, err := b.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (b *badgerTx) Set(key, value []byte) error {
	return b.txn.Set(key, value)
}

func (b *badgerTx) Delete(key []byte) error {
	return b.txn.Delete(key)
}

// Scan iterates inside the transaction, so the keys it visits take part in
// badger's conflict detection.
func (b *badgerTx) Scan(prefix []byte, fn func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := b.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), value); err != nil {
			return err
		}
	}
	return nil
}
