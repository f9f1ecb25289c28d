package keva

import (
	"errors"
	"fmt"

	"github.com/SharedCode/keva/backend"
)

// TransactionMode enumerates the supported transaction behaviors.
type TransactionMode int

const (
	// ForWriting allows modifications. Commit is optimistic and can lose the
	// race against a concurrently committed overlapping writer, in which case
	// the environment re-runs the unit of work (see RunReadWrite).
	ForWriting TransactionMode = iota
	// ForReading disallows modifications; satisfied once from a stable snapshot.
	ForReading
	// ForWritingExclusive allows modifications while holding exclusive
	// admission: no other read-write or exclusive transaction is active, so
	// commit can never conflict.
	ForWritingExclusive
)

func (m TransactionMode) String() string {
	switch m {
	case ForWriting:
		return "read-write"
	case ForReading:
		return "read-only"
	case ForWritingExclusive:
		return "exclusive"
	}
	return "unknown"
}

type txnState int

const (
	stateActive txnState = iota
	stateCommitting
	stateCommitted
	stateConflicted
	stateAborted
)

func (s txnState) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateCommitting:
		return "committing"
	case stateCommitted:
		return "committed"
	case stateConflicted:
		return "conflicted"
	case stateAborted:
		return "aborted"
	}
	return "unknown"
}

// Transaction is an ephemeral, snapshot-consistent view over the Environment's
// stores plus a buffered write set. Writes become visible to other
// transactions only after Commit succeeds. A Transaction must not be shared
// across goroutines.
type Transaction struct {
	id      UUID
	env     *Environment
	mode    TransactionMode
	state   txnState
	back    backend.Transaction
	attempt int
	release func()
	// Stores lazily created inside this transaction; registered with the
	// environment only when the transaction commits.
	pendingStores []StoreInfo
}

// GetID returns the transaction ID. Each re-run of a conflicted unit of work
// gets a brand-new Transaction with a fresh ID.
func (t *Transaction) GetID() UUID {
	return t.id
}

// GetMode returns the configured TransactionMode.
func (t *Transaction) GetMode() TransactionMode {
	return t.mode
}

// Attempt returns the 1-based attempt number of the unit of work this
// transaction runs, >1 after conflict re-runs. Useful for tests and metrics.
func (t *Transaction) Attempt() int {
	return t.attempt
}

// Commit finalizes the transaction. On a read-write transaction it may return
// a CommitConflict Error; RunReadWrite handles that internally, manual
// BeginTransaction callers are expected to re-run their work themselves.
func (t *Transaction) Commit() error {
	if t.state != stateActive {
		return Error{Code: TransactionEnded, Err: fmt.Errorf("cannot commit %s transaction %s, state is %s", t.mode, t.id, t.state)}
	}
	if t.mode == ForReading {
		// Nothing to flush; the snapshot is simply released.
		t.state = stateCommitted
		t.back.Discard()
		t.finish()
		return nil
	}
	t.state = stateCommitting
	err := t.back.Commit()
	t.back.Discard()
	if err != nil {
		if errors.Is(err, backend.ErrConflict) && t.mode == ForWriting {
			t.state = stateConflicted
			t.finish()
			return Error{Code: CommitConflict, Err: err, UserData: t.id.String()}
		}
		// An exclusive transaction has no concurrent writers; any commit
		// failure there, as well as non-conflict failures here, is an engine
		// failure and is never retried.
		t.state = stateAborted
		t.finish()
		return Error{Code: EngineFailure, Err: err, UserData: t.id.String()}
	}
	t.state = stateCommitted
	t.env.registerStores(t.pendingStores)
	t.finish()
	return nil
}

// Rollback aborts the transaction, discarding all buffered writes and any
// stores lazily created within it.
func (t *Transaction) Rollback() error {
	if t.state != stateActive {
		return Error{Code: TransactionEnded, Err: fmt.Errorf("cannot rollback %s transaction %s, state is %s", t.mode, t.id, t.state)}
	}
	t.back.Discard()
	t.state = stateAborted
	t.finish()
	return nil
}

// finish releases write admission exactly once.
func (t *Transaction) finish() {
	if t.release != nil {
		t.release()
		t.release = nil
	}
}

func (t *Transaction) requireActive() error {
	if t.state != stateActive {
		return Error{Code: TransactionEnded, Err: fmt.Errorf("transaction %s is %s", t.id, t.state)}
	}
	return nil
}

func (t *Transaction) requireWritable() error {
	if err := t.requireActive(); err != nil {
		return err
	}
	if t.mode == ForReading {
		return Error{Code: ReadOnlyViolation, Err: backend.ErrReadOnly}
	}
	return nil
}

// registerWrite records bk in the transaction's conflict read set, so that a
// concurrent transaction blind-writing the same key is detected at commit.
// The backend only tracks conflicts on keys it has seen read.
func (t *Transaction) registerWrite(bk []byte) error {
	if _, err := t.back.Get(bk); err != nil && !errors.Is(err, backend.ErrKeyNotFound) {
		return Error{Code: EngineFailure, Err: err}
	}
	return nil
}
