// Package kv provides the single-key blob stores that back upload history.
package kv

import "fmt"

// Store is a minimal persistent key-value store. Values are overwritten whole.
type Store interface {
	// Get returns the value for key. ok is false when the key was never set.
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Close() error
}

// Open returns the backend named by kind.
func Open(kind, dataDir, duckdbFile string) (Store, error) {
	switch kind {
	case "", "file":
		return NewFileStore(dataDir)
	case "duckdb":
		return NewDuckStore(duckdbFile)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
