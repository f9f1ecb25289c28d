package keva

import (
	"errors"

	"github.com/SharedCode/keva/backend"
)

// Store is a named key/value container scoped to an Environment. Handles are
// cheap and stateless; all data access goes through an active Transaction
// passed by the caller, and all effects stay invisible outside that
// transaction until it commits.
type Store struct {
	env  *Environment
	info StoreInfo
}

// Name returns the store's name.
func (s *Store) Name() string {
	return s.info.Name
}

// Config returns the store's permanent configuration.
func (s *Store) Config() StoreConfig {
	return s.info.Config
}

// Environment returns the Environment this store belongs to.
func (s *Store) Environment() *Environment {
	return s.env
}

// Get returns the value for key as seen by txn, or nil if absent. On a store
// with duplicates it returns the first value in storage order.
func (s *Store) Get(txn *Transaction, key []byte) ([]byte, error) {
	if err := s.readable(txn, key); err != nil {
		return nil, err
	}
	if !s.info.Config.AllowDuplicates {
		v, err := txn.back.Get(s.encodeKey(key))
		if errors.Is(err, backend.ErrKeyNotFound) {
			return nil, nil
		}
		return v, wrapBackendErr(err)
	}
	values, err := s.getAll(txn, key, true)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

// Has reports whether key has at least one value as seen by txn.
func (s *Store) Has(txn *Transaction, key []byte) (bool, error) {
	v, err := s.Get(txn, key)
	return v != nil, err
}

// GetAll returns every value stored under key as seen by txn. On a store
// without duplicates the result has at most one element.
func (s *Store) GetAll(txn *Transaction, key []byte) ([][]byte, error) {
	if err := s.readable(txn, key); err != nil {
		return nil, err
	}
	if !s.info.Config.AllowDuplicates {
		v, err := s.Get(txn, key)
		if err != nil || v == nil {
			return nil, err
		}
		return [][]byte{v}, nil
	}
	return s.getAll(txn, key, false)
}

func (s *Store) getAll(txn *Transaction, key []byte, firstOnly bool) ([][]byte, error) {
	it := txn.back.Iterator(s.pairPrefix(key))
	defer it.Close()
	var values [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		_, v, err := s.decodeEntry(it.Key(), nil)
		if err != nil {
			return nil, Error{Code: EngineFailure, Err: err, UserData: s.info.Name}
		}
		values = append(values, v)
		if firstOnly {
			break
		}
	}
	return values, nil
}

// Put writes value under key. On a store without duplicates it overwrites any
// existing value; with duplicates it adds another (key, value) pair, and
// re-adding an identical pair is a no-op.
func (s *Store) Put(txn *Transaction, key, value []byte) error {
	if err := s.writable(txn, key); err != nil {
		return err
	}
	if !s.info.Config.AllowDuplicates {
		bk := s.encodeKey(key)
		if err := txn.registerWrite(bk); err != nil {
			return err
		}
		return wrapBackendErr(txn.back.Set(bk, value))
	}
	bk := s.encodePair(key, value)
	if err := txn.registerWrite(bk); err != nil {
		return err
	}
	return wrapBackendErr(txn.back.Set(bk, nil))
}

// Delete removes key and, on a store with duplicates, all of its values.
// Deleting an absent key is a no-op.
func (s *Store) Delete(txn *Transaction, key []byte) error {
	if err := s.writable(txn, key); err != nil {
		return err
	}
	if !s.info.Config.AllowDuplicates {
		bk := s.encodeKey(key)
		if err := txn.registerWrite(bk); err != nil {
			return err
		}
		return wrapBackendErr(txn.back.Delete(bk))
	}
	keys, err := s.collectPairKeys(txn, s.pairPrefix(key))
	if err != nil {
		return err
	}
	for _, bk := range keys {
		if err := txn.back.Delete(bk); err != nil {
			return wrapBackendErr(err)
		}
	}
	return nil
}

// DeleteValue removes one specific (key, value) pair from a store with
// duplicates. It fails on stores without duplicates, where Delete is the
// operation that matches the data model.
func (s *Store) DeleteValue(txn *Transaction, key, value []byte) error {
	if err := s.writable(txn, key); err != nil {
		return err
	}
	if !s.info.Config.AllowDuplicates {
		return Error{Code: EngineFailure, Err: errors.New("DeleteValue requires a store with duplicates"), UserData: s.info.Name}
	}
	bk := s.encodePair(key, value)
	if err := txn.registerWrite(bk); err != nil {
		return err
	}
	return wrapBackendErr(txn.back.Delete(bk))
}

// Count returns the number of entries in the store as seen by txn. On a store
// with duplicates every (key, value) pair counts.
func (s *Store) Count(txn *Transaction) (uint64, error) {
	if err := txn.requireActive(); err != nil {
		return 0, err
	}
	it := txn.back.Iterator(dataKeyPrefix(s.info.ID))
	defer it.Close()
	var n uint64
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n, nil
}

// collectPairKeys gathers the backend keys under prefix. Collected up front so
// deletions never run against an open iterator.
func (s *Store) collectPairKeys(txn *Transaction, prefix []byte) ([][]byte, error) {
	it := txn.back.Iterator(prefix)
	defer it.Close()
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Key())
	}
	return keys, nil
}

func (s *Store) readable(txn *Transaction, key []byte) error {
	if err := txn.requireActive(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	return nil
}

func (s *Store) writable(txn *Transaction, key []byte) error {
	if err := txn.requireWritable(); err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrKeyEmpty
	}
	return nil
}

func wrapBackendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, backend.ErrReadOnly):
		return Error{Code: ReadOnlyViolation, Err: err}
	case errors.Is(err, backend.ErrTransactionEnded):
		return Error{Code: TransactionEnded, Err: err}
	default:
		return Error{Code: EngineFailure, Err: err}
	}
}
