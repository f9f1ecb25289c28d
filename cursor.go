package keva

import (
	log "log/slog"

	"github.com/SharedCode/keva/backend"
)

// Cursor walks a store's entries within the owning transaction's snapshot,
// merged with the transaction's own buffered writes. On sequential stores
// entries come back in key order; on prefixed (random-lookup) stores they come
// back in fingerprint order. Always Close a cursor before ending the
// transaction.
//
//	c, _ := store.Cursor(txn)
//	defer c.Close()
//	for c.Next() {
//		use(c.Key(), c.Value())
//	}
//	if err := c.Err(); err != nil { ... }
type Cursor struct {
	store      *Store
	iter       backend.Iterator
	positioned bool
	key        []byte
	value      []byte
	err        error
	closed     bool
}

// Cursor opens a cursor over the whole store.
func (s *Store) Cursor(txn *Transaction) (*Cursor, error) {
	if err := txn.requireActive(); err != nil {
		return nil, err
	}
	return &Cursor{
		store: s,
		iter:  txn.back.Iterator(dataKeyPrefix(s.info.ID)),
	}, nil
}

// Next advances to the next entry, or positions at the first one on the
// initial call. It returns false when the store is exhausted or an error
// occurred; check Err after the loop.
func (c *Cursor) Next() bool {
	if c.err != nil || c.closed {
		return false
	}
	if !c.positioned {
		c.iter.Rewind()
		c.positioned = true
	} else if c.iter.Valid() {
		c.iter.Next()
	}
	return c.load()
}

// Seek positions the cursor at the first entry with key >= key (in the
// store's storage order) and loads it. On prefixed stores Seek lands on the
// key's fingerprint bucket, so it is exact for present keys but not a ranged
// lower bound. Returns false when no such entry exists.
func (c *Cursor) Seek(key []byte) bool {
	if c.err != nil || c.closed {
		return false
	}
	if len(key) == 0 {
		c.err = ErrKeyEmpty
		return false
	}
	c.iter.Seek(c.store.seekTarget(key))
	c.positioned = true
	return c.load()
}

// load decodes the current iterator entry into key/value.
func (c *Cursor) load() bool {
	if !c.iter.Valid() {
		return false
	}
	bk := c.iter.Key()
	if !c.store.hasDataPrefix(bk) {
		return false
	}
	var bv []byte
	if !c.store.info.Config.AllowDuplicates {
		v, err := c.iter.Value()
		if err != nil {
			c.err = Error{Code: EngineFailure, Err: err, UserData: c.store.info.Name}
			return false
		}
		bv = v
	}
	k, v, err := c.store.decodeEntry(bk, bv)
	if err != nil {
		log.Error("cursor decode failed", "store", c.store.info.Name, "error", err.Error())
		c.err = Error{Code: EngineFailure, Err: err, UserData: c.store.info.Name}
		return false
	}
	c.key, c.value = k, v
	return true
}

// Key returns the entry key loaded by the last successful Next/Seek.
func (c *Cursor) Key() []byte {
	return c.key
}

// Value returns the entry value loaded by the last successful Next/Seek.
func (c *Cursor) Value() []byte {
	return c.value
}

// Err returns the first error the cursor encountered, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor. Idempotent.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.iter.Close()
}
