// Package badgerdb implements the keva backend boundary on top of
// dgraph-io/badger, whose transactions provide the snapshot isolation and
// optimistic conflict detection the engine builds on.
package badgerdb

import (
	"errors"

	"github.com/dgraph-io/badger/v3"

	"github.com/SharedCode/keva/backend"
)

// Options carries the backend knobs the environment layer maps from keva.Options.
type Options struct {
	// Dir is the directory holding the data and log files.
	Dir string
	// SyncWrites makes every commit flush the value log before returning.
	SyncWrites bool
	// BlockCacheSize in bytes. 0 keeps the badger default.
	BlockCacheSize int64
	// ValueLogFileSize in bytes. 0 keeps the badger default.
	ValueLogFileSize int64
}

// Store wraps a badger database directory.
type Store struct {
	db *badger.DB
}

// Open opens (creating if necessary) the badger database at opts.Dir.
// Badger holds a directory lock, so a second Open of the same directory from
// any process fails until the store is closed.
func Open(opts Options) (*Store, error) {
	bo := badger.DefaultOptions(opts.Dir)
	bo.SyncWrites = opts.SyncWrites
	// Quiet badger's own logging; keva logs at its layer.
	bo.Logger = nil
	if opts.BlockCacheSize > 0 {
		bo = bo.WithBlockCacheSize(opts.BlockCacheSize)
	}
	if opts.ValueLogFileSize > 0 {
		bo = bo.WithValueLogFileSize(opts.ValueLogFileSize)
	}
	db, err := badger.Open(bo)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Sync() error {
	return s.db.Sync()
}

func (s *Store) NewTransaction(update bool) backend.Transaction {
	return &txn{txn: s.db.NewTransaction(update)}
}

type txn struct {
	txn *badger.Txn
}

func (t *txn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if err != nil {
		return nil, mapError(err)
	}
	return item.ValueCopy(nil)
}

func (t *txn) Set(key, value []byte) error {
	return mapError(t.txn.Set(key, value))
}

func (t *txn) Delete(key []byte) error {
	return mapError(t.txn.Delete(key))
}

func (t *txn) Commit() error {
	return mapError(t.txn.Commit())
}

func (t *txn) Discard() {
	t.txn.Discard()
}

func (t *txn) Iterator(prefix []byte) backend.Iterator {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	return &iterator{iter: t.txn.NewIterator(opts), prefix: prefix}
}

// mapError translates badger sentinels into backend sentinels so the engine
// never depends on badger directly.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return backend.ErrKeyNotFound
	case errors.Is(err, badger.ErrConflict):
		return backend.ErrConflict
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return backend.ErrReadOnly
	case errors.Is(err, badger.ErrDiscardedTxn):
		return backend.ErrTransactionEnded
	default:
		return err
	}
}
