/*
File Name:  Store.go
Copyright:  2024 Lumen Network s.r.o.

Simple key-value store interface backing the chain object storage.
*/

package store

import (
	"errors"
)

// Store is the interface for implementing the storage mechanism for chain objects.
type Store interface {
	// Set stores the key/value pair.
	Set(key []byte, data []byte) error

	// Get returns the value for the key if present.
	Get(key []byte) (data []byte, found bool)

	// Has reports whether the key is present.
	Has(key []byte) bool

	// Delete deletes a key/value pair.
	Delete(key []byte) error

	// Iterate calls f for every key/value pair until f returns false.
	// The iteration order is unspecified.
	Iterate(f func(key, data []byte) bool) error

	// Count returns the count of records stored.
	Count() uint64

	// Close flushes and closes the underlying database.
	Close() error
}

// Store backend names accepted in the config.
const (
	BackendMemory = "memory"
	BackendPogreb = "pogreb"
	BackendPebble = "pebble"
)

// ErrUnknownBackend is returned for a backend name not listed above.
var ErrUnknownBackend = errors.New("unknown store backend")

// New creates a store with the given backend. The path is ignored for the memory backend.
func New(backend, path string) (store Store, err error) {
	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendPogreb, "":
		return NewPogrebStore(path)
	case BackendPebble:
		return NewPebbleStore(path)
	}

	return nil, ErrUnknownBackend
}
