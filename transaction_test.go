package keva

import (
	"testing"
)

func TestTransactionEndStatesAreSticky(t *testing.T) {
	env := newTestEnv(t, nil)

	txn, err := env.BeginTransaction(ctx, ForWriting)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := txn.Commit(); !IsErrorCode(err, TransactionEnded) {
		t.Errorf("second commit: got %v, want TransactionEnded", err)
	}
	if err := txn.Rollback(); !IsErrorCode(err, TransactionEnded) {
		t.Errorf("rollback after commit: got %v, want TransactionEnded", err)
	}

	ro, err := env.BeginTransaction(ctx, ForReading)
	if err != nil {
		t.Fatalf("begin read failed: %v", err)
	}
	if err := ro.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if err := ro.Commit(); !IsErrorCode(err, TransactionEnded) {
		t.Errorf("commit after rollback: got %v, want TransactionEnded", err)
	}
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env, "alice", "100")

	err := env.RunReadOnly(ctx, func(txn *Transaction) error {
		st, err := env.OpenStoreWithoutDuplicates(txn, "accounts")
		if err != nil {
			return err
		}
		return st.Put(txn, []byte("alice"), []byte("200"))
	})
	if !IsErrorCode(err, ReadOnlyViolation) {
		t.Errorf("got %v, want ReadOnlyViolation", err)
	}
	if got := readAccount(t, env, "alice"); string(got) != "100" {
		t.Errorf("read-only transaction mutated the store: %q", got)
	}
}

func TestRollbackDiscardsWritesAndStoreCreation(t *testing.T) {
	env := newTestEnv(t, nil)

	txn, err := env.BeginTransaction(ctx, ForWriting)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	st, err := env.OpenStore(txn, "scratch", WithDuplicates)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := st.Put(txn, []byte("k"), []byte("v")); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if _, ok := env.StoreConfig("scratch"); ok {
		t.Error("store creation survived rollback")
	}

	// The name is free again, with any configuration.
	err = env.RunReadWrite(ctx, func(txn *Transaction) error {
		_, err := env.OpenStore(txn, "scratch", WithoutDuplicates)
		return err
	})
	if err != nil {
		t.Errorf("recreating the store after rollback failed: %v", err)
	}
}

func TestUnitOfWorkMayAbortItself(t *testing.T) {
	env := newTestEnv(t, nil)
	attempts := 0
	err := env.RunReadWrite(ctx, func(txn *Transaction) error {
		attempts++
		st, err := env.OpenStoreWithoutDuplicates(txn, "accounts")
		if err != nil {
			return err
		}
		if err := st.Put(txn, []byte("alice"), []byte("100")); err != nil {
			return err
		}
		// Caller-initiated discard: terminal, never retried.
		return txn.Rollback()
	})
	if err != nil {
		t.Fatalf("RunReadWrite failed: %v", err)
	}
	if attempts != 1 {
		t.Errorf("aborted unit of work ran %d times, want 1", attempts)
	}
	if _, ok := env.StoreConfig("accounts"); ok {
		t.Error("aborted transaction committed its store creation")
	}
}

func TestTransactionIdentity(t *testing.T) {
	env := newTestEnv(t, nil)
	a, err := env.BeginTransaction(ctx, ForReading)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	b, err := env.BeginTransaction(ctx, ForReading)
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if a.GetID().IsNil() || b.GetID().IsNil() {
		t.Error("transaction IDs must not be nil")
	}
	if a.GetID().Compare(b.GetID()) == 0 {
		t.Error("distinct transactions share an ID")
	}
	if a.GetMode() != ForReading {
		t.Errorf("mode = %v, want ForReading", a.GetMode())
	}
	_ = a.Rollback()
	_ = b.Rollback()
}
