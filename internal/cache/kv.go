package cache

// KV defines the minimal key-value cache contract with TTL semantics.
// Implementations must be safe for concurrent use by multiple goroutines.
//
// Get returns stale entries too; freshness is decided by the caller through
// Entry.FreshAt so that every cache layer can run on its own clock.
type KV interface {
	Get(key string) (Entry, error)
	Put(key string, entry Entry) error
	// Delete reports whether the key was present.
	Delete(key string) (bool, error)
	// Clear removes every key and returns how many were removed.
	Clear() (int, error)
}
