package keva

import "fmt"

// KeyAccess selects the key layout of a store. The choice is fixed at store
// creation time.
type KeyAccess int

const (
	// SequentialAccess lays keys out in plain lexicographic order. Cursors
	// iterate in key order; best for range scans.
	SequentialAccess KeyAccess = iota
	// RandomAccess prefixes every key with a fixed-size hash fingerprint,
	// spreading keys across the keyspace for fast point lookups. Point reads
	// and writes stay exact; cursors iterate in fingerprint order, which is
	// effectively unordered from the caller's point of view.
	RandomAccess
)

// StoreConfig fixes the two independent axes of a store: whether duplicate
// keys are allowed, and the key-access layout. Both are permanent properties
// set when the store is first created; reopening a store with a different
// StoreConfig fails with ConfigurationMismatch.
type StoreConfig struct {
	// AllowDuplicates permits multiple values under the same key. When false,
	// Put overwrites the existing value.
	AllowDuplicates bool `json:"allow_duplicates"`
	// KeyAccess selects the sequential or random-lookup key layout.
	KeyAccess KeyAccess `json:"key_access"`
}

// The four supported store variants.
var (
	// WithoutDuplicates: unique keys, ordered layout.
	WithoutDuplicates = StoreConfig{}
	// WithoutDuplicatesWithPrefixing: unique keys, random-lookup layout.
	WithoutDuplicatesWithPrefixing = StoreConfig{KeyAccess: RandomAccess}
	// WithDuplicates: duplicate keys allowed, ordered layout.
	WithDuplicates = StoreConfig{AllowDuplicates: true}
	// WithDuplicatesWithPrefixing: duplicate keys allowed, random-lookup layout.
	WithDuplicatesWithPrefixing = StoreConfig{AllowDuplicates: true, KeyAccess: RandomAccess}
)

func (c StoreConfig) String() string {
	dup := "without duplicates"
	if c.AllowDuplicates {
		dup = "with duplicates"
	}
	access := "sequential"
	if c.KeyAccess == RandomAccess {
		access = "prefixed"
	}
	return fmt.Sprintf("%s, %s", dup, access)
}
