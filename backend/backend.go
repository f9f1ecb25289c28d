// Package backend defines the boundary between the keva transaction engine
// and the underlying page storage engine. The engine below this boundary owns
// the on-disk format, write-ahead log and file I/O; keva only requires
// snapshot-isolated transactions with optimistic conflict detection on commit.
package backend

import "errors"

var (
	// ErrConflict is returned by Commit on an update transaction that lost the
	// optimistic race: another transaction committed writes overlapping this
	// transaction's read set since its snapshot was taken.
	ErrConflict = errors.New("transaction conflict, retry needed")

	// ErrKeyNotFound is returned by Get when no value exists for the key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrReadOnly is returned when a write operation is attempted on a read-only transaction.
	ErrReadOnly = errors.New("cannot modify read-only transaction")

	// ErrTransactionEnded is returned when a committed or discarded transaction is used.
	ErrTransactionEnded = errors.New("transaction has been committed or discarded")
)

// Store is a handle on the underlying storage engine, scoped to one directory.
type Store interface {
	// NewTransaction begins a transaction over a consistent snapshot taken now.
	// update=false yields a read-only transaction whose Commit is a no-op and
	// which can never conflict.
	NewTransaction(update bool) Transaction
	// Sync flushes pending writes to stable storage.
	Sync() error
	// Close releases files, locks and memory-mapped regions. Idempotent at the
	// caller's peril; callers must not use the store afterwards.
	Close() error
}

// Transaction is a snapshot view plus a buffered write set. Writes are not
// visible to any other transaction until Commit returns nil.
type Transaction interface {
	// Get returns the value for key as of the snapshot, including this
	// transaction's own buffered writes. Returns ErrKeyNotFound when absent.
	// The read is registered for conflict detection on update transactions.
	Get(key []byte) ([]byte, error)

	// Set buffers a write. CONTRACT: key, value readonly []byte.
	Set(key, value []byte) error

	// Delete buffers a deletion. CONTRACT: key readonly []byte.
	Delete(key []byte) error

	// Iterator walks keys under prefix in lexicographic order, merged with the
	// transaction's buffered writes. Callers must Close it before committing.
	Iterator(prefix []byte) Iterator

	// Commit durably applies the write set, or returns ErrConflict when the
	// optimistic check fails. Only Discard may be called afterwards.
	Commit() error

	// Discard drops the transaction and its buffered writes. Idempotent; safe
	// to call after Commit.
	Discard()
}

// Iterator walks a key range. Callers must call Close when done.
type Iterator interface {
	// Rewind positions at the first key of the prefix domain.
	Rewind()
	// Seek positions at the first key >= key within the domain.
	Seek(key []byte)
	// Valid reports whether the iterator is positioned on an entry.
	Valid() bool
	// Next advances to the next key. Requires Valid.
	Next()
	// Key returns a copy of the key at the current position. Requires Valid.
	Key() []byte
	// Value returns a copy of the value at the current position. Requires Valid.
	Value() ([]byte, error)
	// Close releases iterator resources.
	Close()
}
