package keva

// StoreInfo is the persisted metadata of a store. It is written to the
// backend's reserved meta keyspace when the store is first created, inside
// the creating transaction, so creation commits (or is discarded) atomically
// with the rest of the unit of work.
type StoreInfo struct {
	// Short name of the store, unique within the Environment.
	Name string `json:"name"`
	// ID is the store's keyspace number, allocated from a persisted sequence
	// at creation time. All backend keys of the store carry it as prefix.
	ID uint32 `json:"id"`
	// Config is the store's permanent configuration (see StoreConfig).
	Config StoreConfig `json:"config"`
	// CreatedAt is the creation time in Unix milliseconds.
	CreatedAt int64 `json:"created_at"`
}

// IsCompatible reports whether reopening this store with cfg is allowed.
func (s StoreInfo) IsCompatible(cfg StoreConfig) bool {
	return s.Config == cfg
}
