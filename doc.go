// Package keva implements an embedded transactional key/value storage core.
// An Environment owns named Stores and executes units of work under ACID
// transactions of three kinds: read-write (optimistic, automatically re-run
// on commit conflict), read-only (snapshot, executed exactly once) and
// exclusive (admission-serialized against all other writers).
// The on-disk representation, write-ahead log and file I/O are delegated to
// a pluggable backend (see the backend and badgerdb packages); keva owns the
// store registry, the key layouts and the transaction execution protocol.
//
// The central contract of RunReadWrite is that the unit of work may be
// invoked more than once before the call returns: when its commit loses the
// optimistic race, the whole transaction is discarded and the unit of work is
// re-executed against a fresh snapshot. Units of work must therefore be free
// of externally observable side effects until the final successful run.
package keva

// Durability model
//
// Commits are durable according to Options.Durability:
//  1. SyncEveryCommit flushes the backend's write-ahead log on every commit.
//  2. SyncPeriodic leaves flushing to the backend/OS; a crash may lose the
//     tail of recently committed transactions but never corrupts the store.
//
// Closing the Environment always syncs before releasing the directory.
