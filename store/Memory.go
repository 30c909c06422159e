/*
File Name:  Memory.go
Copyright:  2024 Lumen Foundation s.r.o.
*/

package store

import (
	"sync"
)

// MemoryStore is a simple in-memory key/value store. It is used in tests and
// for running a throwaway node without touching disk.
type MemoryStore struct {
	mutex sync.RWMutex
	data  map[string][]byte
}

// NewMemoryStore create a properly initialized memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Set stores the key/value pair.
func (ms *MemoryStore) Set(key []byte, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	ms.mutex.Lock()
	ms.data[string(key)] = stored
	ms.mutex.Unlock()
	return nil
}

// Get returns the value for the key if present.
func (ms *MemoryStore) Get(key []byte) (data []byte, found bool) {
	ms.mutex.RLock()
	data, found = ms.data[string(key)]
	ms.mutex.RUnlock()
	return data, found
}

// Has reports whether the key is present.
func (ms *MemoryStore) Has(key []byte) bool {
	ms.mutex.RLock()
	_, found := ms.data[string(key)]
	ms.mutex.RUnlock()
	return found
}

// Delete deletes a key/value pair.
func (ms *MemoryStore) Delete(key []byte) error {
	ms.mutex.Lock()
	delete(ms.data, string(key))
	ms.mutex.Unlock()
	return nil
}

// Iterate calls f for every key/value pair until f returns false.
func (ms *MemoryStore) Iterate(f func(key, data []byte) bool) error {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	for key, data := range ms.data {
		if !f([]byte(key), data) {
			return nil
		}
	}
	return nil
}

// Count returns the count of records stored.
func (ms *MemoryStore) Count() uint64 {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return uint64(len(ms.data))
}

// Close is a no-op for the memory store.
func (ms *MemoryStore) Close() error {
	return nil
}
