package keva

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/SharedCode/keva/backend"
	"github.com/SharedCode/keva/badgerdb"
)

// Write admission is a weighted semaphore: read-write transactions hold 1,
// an exclusive transaction holds all of it, read-only transactions none.
const maxWriters = 1 << 30

// One physical Environment per directory, process-wide. The backend holds a
// directory lock as well, which extends the guarantee across processes.
var (
	openEnvironments     = map[string]*Environment{}
	openEnvironmentsLock sync.Mutex
)

// Environment owns the durable state at one directory, the store registry and
// the transaction lifecycle. It is safe for concurrent use from many
// goroutines; each RunX call blocks its caller until completion, including
// through conflict re-runs.
type Environment struct {
	path    string
	opts    Options
	back    backend.Store
	writers *semaphore.Weighted

	mu     sync.RWMutex
	stores map[string]StoreInfo
	closed bool

	conflictRetries atomic.Uint64
}

// Open opens (creating if necessary) the environment at the given directory.
// A nil opts uses defaults. While an Environment is open, no second one can
// address the same directory; Close releases it.
func Open(path string, opts *Options) (*Environment, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.fillDefaults()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, Error{Code: EngineFailure, Err: err, UserData: path}
	}

	openEnvironmentsLock.Lock()
	defer openEnvironmentsLock.Unlock()
	if _, ok := openEnvironments[abs]; ok {
		return nil, Error{Code: EngineFailure, Err: fmt.Errorf("an environment is already open at %s", abs), UserData: abs}
	}

	back, err := badgerdb.Open(badgerdb.Options{
		Dir:              abs,
		SyncWrites:       o.Durability == SyncEveryCommit,
		BlockCacheSize:   o.BlockCacheSize,
		ValueLogFileSize: o.ValueLogFileSize,
	})
	if err != nil {
		return nil, Error{Code: EngineFailure, Err: err, UserData: abs}
	}

	e := &Environment{
		path:    abs,
		opts:    o,
		back:    back,
		writers: semaphore.NewWeighted(maxWriters),
		stores:  map[string]StoreInfo{},
	}
	if err := e.loadStoreRegistry(); err != nil {
		back.Close()
		return nil, err
	}
	openEnvironments[abs] = e
	log.Debug("environment opened", "path", abs, "stores", len(e.stores))
	return e, nil
}

// Close drains active writers, syncs and releases the underlying backend
// resources (file handles, directory lock, memory maps). Double-close and
// any use after Close error with EnvironmentClosed.
func (e *Environment) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Error{Code: EnvironmentClosed, Err: fmt.Errorf("environment at %s is already closed", e.path)}
	}
	e.closed = true
	e.mu.Unlock()

	// New transactions are refused from here on; wait out in-flight writers.
	if err := e.writers.Acquire(context.Background(), maxWriters); err != nil {
		return Error{Code: EngineFailure, Err: err, UserData: e.path}
	}
	defer e.writers.Release(maxWriters)

	err := e.back.Sync()
	if cerr := e.back.Close(); err == nil {
		err = cerr
	}

	openEnvironmentsLock.Lock()
	delete(openEnvironments, e.path)
	openEnvironmentsLock.Unlock()

	log.Debug("environment closed", "path", e.path)
	if err != nil {
		return Error{Code: EngineFailure, Err: err, UserData: e.path}
	}
	return nil
}

// Path returns the directory this environment addresses.
func (e *Environment) Path() string {
	return e.path
}

// ConflictRetries returns the total number of unit-of-work re-runs this
// environment has performed due to commit conflicts. Exposed for tests and
// metrics scraping.
func (e *Environment) ConflictRetries() uint64 {
	return e.conflictRetries.Load()
}

// BeginTransaction starts a transaction of the given mode. Most callers want
// the RunX/ComputeX wrappers instead, which settle the transaction and drive
// the conflict re-run protocol; manual callers own Commit/Rollback and must
// re-run their work themselves on a CommitConflict error.
// An exclusive begin blocks until no read-write or exclusive transaction is
// active; ctx bounds that wait.
func (e *Environment) BeginTransaction(ctx context.Context, mode TransactionMode) (*Transaction, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	var release func()
	switch mode {
	case ForReading:
		// Read-only snapshots need no admission; they run concurrently with anything.
	case ForWriting:
		if err := e.writers.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		release = func() { e.writers.Release(1) }
	case ForWritingExclusive:
		if err := e.writers.Acquire(ctx, maxWriters); err != nil {
			return nil, err
		}
		release = func() { e.writers.Release(maxWriters) }
	default:
		return nil, Error{Code: EngineFailure, Err: fmt.Errorf("unknown transaction mode %d", mode)}
	}
	// Admission may have blocked; the environment can have closed meanwhile.
	if err := e.checkOpen(); err != nil {
		if release != nil {
			release()
		}
		return nil, err
	}
	return &Transaction{
		id:      NewUUID(),
		env:     e,
		mode:    mode,
		state:   stateActive,
		back:    e.back.NewTransaction(mode != ForReading),
		attempt: 1,
		release: release,
	}, nil
}

// RunReadWrite executes fn inside a fresh read-write transaction and commits
// it. When the commit loses the optimistic race against a concurrently
// committed overlapping writer, the transaction is discarded and fn is
// re-executed from scratch against a new snapshot, with Fibonacci backoff,
// until it commits, fails permanently, or Options.MaxCommitRetries is
// exhausted.
//
// Contract: fn may be invoked more than once before this call returns. It
// must be free of externally observable side effects prior to the final
// successful run; the engine cannot enforce this.
func (e *Environment) RunReadWrite(ctx context.Context, fn func(*Transaction) error) error {
	attempt := 0
	b := newConflictBackoff(e.opts.ConflictBackoffBase, e.opts.MaxCommitRetries)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		return e.runOnce(ctx, ForWriting, attempt, fn)
	})
	if err == nil {
		return nil
	}
	if IsErrorCode(err, CommitConflict) {
		log.Warn("read-write unit of work gave up after repeated conflicts", "attempts", attempt, "path", e.path)
		return Error{Code: ConflictRetryExhausted, Err: err, UserData: attempt}
	}
	return err
}

// RunReadOnly executes fn exactly once against a stable snapshot. Nothing is
// flushed, so no conflict and no re-run are possible.
func (e *Environment) RunReadOnly(ctx context.Context, fn func(*Transaction) error) error {
	return e.runOnce(ctx, ForReading, 1, fn)
}

// RunExclusive blocks until no other read-write or exclusive transaction is
// active, then executes fn exactly once and commits. Mutual exclusion is
// enforced by admission, so the commit cannot conflict by construction.
func (e *Environment) RunExclusive(ctx context.Context, fn func(*Transaction) error) error {
	return e.runOnce(ctx, ForWritingExclusive, 1, fn)
}

// runOnce runs fn against one fresh transaction and settles it. A commit
// conflict comes back marked retryable for the RunReadWrite loop; every other
// failure is permanent.
func (e *Environment) runOnce(ctx context.Context, mode TransactionMode, attempt int, fn func(*Transaction) error) error {
	txn, err := e.BeginTransaction(ctx, mode)
	if err != nil {
		return err
	}
	txn.attempt = attempt
	if err := fn(txn); err != nil {
		// Caller failure: abort this attempt and propagate. Not a conflict,
		// so never re-run.
		if txn.state == stateActive {
			_ = txn.Rollback()
		}
		return err
	}
	switch txn.state {
	case stateActive:
	case stateCommitted, stateAborted:
		// fn settled the transaction itself; respect its decision.
		return nil
	default:
		return Error{Code: TransactionEnded, Err: fmt.Errorf("unit of work left transaction %s in state %s", txn.id, txn.state)}
	}
	if err := txn.Commit(); err != nil {
		if IsErrorCode(err, CommitConflict) {
			total := e.conflictRetries.Add(1)
			log.Debug("commit conflict, unit of work will be re-run",
				"txn", txn.id.String(), "attempt", attempt, "total_conflicts", total)
			return retry.RetryableError(err)
		}
		return err
	}
	return nil
}

// OpenStore opens the named store within txn's scope, lazily creating it on
// first open. Creation is buffered in txn like any other write: it becomes
// durable only when txn commits and is discarded with it otherwise. Reopening
// an existing store with a different StoreConfig fails with
// ConfigurationMismatch; a store missing from a read-only transaction's
// snapshot cannot be created and fails with ReadOnlyViolation.
func (e *Environment) OpenStore(txn *Transaction, name string, cfg StoreConfig) (*Store, error) {
	if err := txn.requireActive(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, Error{Code: EngineFailure, Err: errors.New("store name cannot be empty")}
	}

	// The registry record read goes through txn so it lands in the conflict
	// read set: two transactions racing to create the same store serialize at
	// commit, and the loser re-runs against the winner's record.
	mk := metaKey(name)
	raw, err := txn.back.Get(mk)
	switch {
	case err == nil:
		var info StoreInfo
		if jerr := json.Unmarshal(raw, &info); jerr != nil {
			return nil, Error{Code: EngineFailure, Err: jerr, UserData: name}
		}
		if !info.IsCompatible(cfg) {
			return nil, Error{Code: ConfigurationMismatch,
				Err: fmt.Errorf("store %q exists with config (%s), requested (%s)", name, info.Config, cfg), UserData: name}
		}
		return &Store{env: e, info: info}, nil
	case errors.Is(err, backend.ErrKeyNotFound):
		// Fall through to lazy creation.
	default:
		return nil, wrapBackendErr(err)
	}

	if txn.mode == ForReading {
		return nil, Error{Code: ReadOnlyViolation,
			Err: fmt.Errorf("store %q does not exist and cannot be created in a read-only transaction", name), UserData: name}
	}
	id, err := e.nextStoreID(txn)
	if err != nil {
		return nil, err
	}
	info := StoreInfo{Name: name, ID: id, Config: cfg, CreatedAt: time.Now().UnixMilli()}
	rec, err := json.Marshal(info)
	if err != nil {
		return nil, Error{Code: EngineFailure, Err: err, UserData: name}
	}
	if err := txn.back.Set(mk, rec); err != nil {
		return nil, wrapBackendErr(err)
	}
	txn.pendingStores = append(txn.pendingStores, info)
	log.Debug("store created", "name", name, "config", cfg.String(), "id", id, "txn", txn.id.String())
	return &Store{env: e, info: info}, nil
}

// OpenStoreWithoutDuplicates opens (creating if absent) a store with unique
// keys and the sequential key layout.
func (e *Environment) OpenStoreWithoutDuplicates(txn *Transaction, name string) (*Store, error) {
	return e.OpenStore(txn, name, WithoutDuplicates)
}

// OpenStoreWithoutDuplicatesWithPrefixing opens (creating if absent) a store
// with unique keys and the random-lookup key layout.
func (e *Environment) OpenStoreWithoutDuplicatesWithPrefixing(txn *Transaction, name string) (*Store, error) {
	return e.OpenStore(txn, name, WithoutDuplicatesWithPrefixing)
}

// OpenStoreWithDuplicates opens (creating if absent) a store allowing
// duplicate keys with the sequential key layout.
func (e *Environment) OpenStoreWithDuplicates(txn *Transaction, name string) (*Store, error) {
	return e.OpenStore(txn, name, WithDuplicates)
}

// OpenStoreWithDuplicatesWithPrefixing opens (creating if absent) a store
// allowing duplicate keys with the random-lookup key layout.
func (e *Environment) OpenStoreWithDuplicatesWithPrefixing(txn *Transaction, name string) (*Store, error) {
	return e.OpenStore(txn, name, WithDuplicatesWithPrefixing)
}

// Stores lists the names of all committed stores, sorted.
func (e *Environment) Stores() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.stores))
	for name := range e.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StoreConfig returns the configuration of a committed store, if it exists.
func (e *Environment) StoreConfig(name string) (StoreConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info, ok := e.stores[name]
	return info.Config, ok
}

// nextStoreID allocates a store keyspace number through txn. The sequence key
// read-modify-write also serializes concurrent store creations at commit.
func (e *Environment) nextStoreID(txn *Transaction) (uint32, error) {
	var last uint32
	raw, err := txn.back.Get(seqKey)
	switch {
	case err == nil:
		last = binary.BigEndian.Uint32(raw)
	case errors.Is(err, backend.ErrKeyNotFound):
	default:
		return 0, wrapBackendErr(err)
	}
	next := last + 1
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, next)
	if err := txn.back.Set(seqKey, buf); err != nil {
		return 0, wrapBackendErr(err)
	}
	return next, nil
}

// registerStores publishes committed lazy store creations to the registry.
func (e *Environment) registerStores(infos []StoreInfo) {
	if len(infos) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, info := range infos {
		e.stores[info.Name] = info
	}
}

// loadStoreRegistry scans the persisted registry records at open time.
func (e *Environment) loadStoreRegistry() error {
	txn := e.back.NewTransaction(false)
	defer txn.Discard()
	it := txn.Iterator(metaPrefix)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		raw, err := it.Value()
		if err != nil {
			return Error{Code: EngineFailure, Err: err, UserData: e.path}
		}
		var info StoreInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return Error{Code: EngineFailure, Err: fmt.Errorf("corrupt store registry record %q: %w", it.Key(), err), UserData: e.path}
		}
		e.stores[info.Name] = info
	}
	return nil
}

func (e *Environment) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Error{Code: EnvironmentClosed, Err: fmt.Errorf("environment at %s is closed", e.path)}
	}
	return nil
}
