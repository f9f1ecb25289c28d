package keva

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestDisjointCommitsAreAllVisible(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env, "init", "0") // create the store up front

	const writers = 8
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			return env.RunReadWrite(ctx, func(txn *Transaction) error {
				st, err := env.OpenStoreWithoutDuplicates(txn, "accounts")
				if err != nil {
					return err
				}
				return st.Put(txn, []byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("val-%d", i)))
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent writers failed: %v", err)
	}

	// A reader started after the last commit sees the union of all writes.
	err := env.RunReadOnly(ctx, func(txn *Transaction) error {
		st, err := env.OpenStoreWithoutDuplicates(txn, "accounts")
		if err != nil {
			return err
		}
		for i := 0; i < writers; i++ {
			v, err := st.Get(txn, []byte(fmt.Sprintf("key-%d", i)))
			if err != nil {
				return err
			}
			if string(v) != fmt.Sprintf("val-%d", i) {
				t.Errorf("key-%d = %q, want val-%d", i, v, i)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reader failed: %v", err)
	}
}

func TestExclusiveTransactionsSerialize(t *testing.T) {
	env := newTestEnv(t, nil)

	const n = 6
	var active, peak int32
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return env.RunExclusive(ctx, func(txn *Transaction) error {
				cur := atomic.AddInt32(&active, 1)
				defer atomic.AddInt32(&active, -1)
				for {
					p := atomic.LoadInt32(&peak)
					if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("exclusive transactions failed: %v", err)
	}
	if got := atomic.LoadInt32(&peak); got != 1 {
		t.Errorf("%d exclusive transactions were active at once, want strict serialization", got)
	}
}

func TestExclusiveBlocksReadWriteButNotReadOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	seedAccount(t, env, "alice", "100")

	started := make(chan struct{})
	release := make(chan struct{})
	events := make(chan string, 2)

	var g errgroup.Group
	g.Go(func() error {
		return env.RunExclusive(ctx, func(txn *Transaction) error {
			close(started)
			<-release
			events <- "exclusive"
			return nil
		})
	})
	<-started

	// Read-only proceeds while the exclusive transaction holds admission.
	if got := readAccount(t, env, "alice"); string(got) != "100" {
		t.Errorf("read-only during exclusive got %q, want 100", got)
	}

	g.Go(func() error {
		return env.RunReadWrite(ctx, func(txn *Transaction) error {
			st, err := env.OpenStoreWithoutDuplicates(txn, "accounts")
			if err != nil {
				return err
			}
			if err := st.Put(txn, []byte("alice"), []byte("200")); err != nil {
				return err
			}
			events <- "read-write"
			return nil
		})
	})

	// Give the read-write goroutine a chance to (incorrectly) run early.
	time.Sleep(50 * time.Millisecond)
	select {
	case ev := <-events:
		t.Fatalf("%s transaction ran while exclusive admission was held", ev)
	default:
	}

	close(release)
	if err := g.Wait(); err != nil {
		t.Fatalf("transactions failed: %v", err)
	}
	if first := <-events; first != "exclusive" {
		t.Errorf("first completed: %s, want exclusive", first)
	}
	if second := <-events; second != "read-write" {
		t.Errorf("second completed: %s, want read-write", second)
	}
}
