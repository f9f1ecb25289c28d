package keva

import "time"

// DurabilityMode controls when committed data reaches stable storage.
type DurabilityMode int

const (
	// SyncEveryCommit flushes the backend write-ahead log on every commit.
	// Safest; every successfully committed transaction survives a crash.
	SyncEveryCommit DurabilityMode = iota
	// SyncPeriodic leaves flushing to the backend and the OS. Much faster for
	// write-heavy loads; a crash may lose the most recent commits.
	SyncPeriodic
)

// Options holds the configuration for an Environment.
type Options struct {
	// BlockCacheSize is the backend block cache size in bytes. 0 uses the backend default.
	BlockCacheSize int64 `json:"block_cache_size,omitempty"`
	// ValueLogFileSize is the maximum size in bytes of a single backend log file.
	// 0 uses the backend default.
	ValueLogFileSize int64 `json:"value_log_file_size,omitempty"`
	// Durability selects when commits are flushed. Defaults to SyncEveryCommit.
	Durability DurabilityMode `json:"durability,omitempty"`
	// MaxCommitRetries bounds how many times a read-write unit of work is re-run
	// after a commit conflict before RunReadWrite gives up with
	// ConflictRetryExhausted. 0 means retry until committed, which is the
	// historical behavior of this engine family; under sustained write
	// contention prefer a bound plus the backoff below.
	MaxCommitRetries uint64 `json:"max_commit_retries,omitempty"`
	// ConflictBackoffBase is the base delay of the Fibonacci backoff applied
	// between conflict re-runs. Defaults to 1ms, capped at 250ms.
	ConflictBackoffBase time.Duration `json:"conflict_backoff_base,omitempty"`
}

func (o *Options) fillDefaults() {
	if o.ConflictBackoffBase <= 0 {
		o.ConflictBackoffBase = time.Millisecond
	}
}
