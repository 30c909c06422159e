/*
File Name:  Pebble.go
Copyright:  2024 Lumen Network s.r.o.

Note: Pebble pulls in many dependencies and increases the binary size
noticeably. It is offered for nodes that store large chains; the default
backend remains Pogreb.
*/

package store

import (
	"github.com/cockroachdb/pebble"
)

// PebbleStore is a key/value store using Pebble from CockroachDB.
type PebbleStore struct {
	filename string
	db       *pebble.DB
}

// NewPebbleStore creates a properly initialized pebble store.
func NewPebbleStore(filename string) (store *PebbleStore, err error) {
	// if the database does not exist, it will be created
	db, err := pebble.Open(filename, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &PebbleStore{
		filename: filename,
		db:       db,
	}, nil
}

// Set stores the key/value pair.
func (store *PebbleStore) Set(key []byte, data []byte) error {
	return store.db.Set(key, data, pebble.Sync)
}

// Get returns the value for the key if present.
func (store *PebbleStore) Get(key []byte) (data []byte, found bool) {
	value, closer, err := store.db.Get(key)
	if err != nil {
		return nil, false
	}

	data = make([]byte, len(value))
	copy(data, value)
	closer.Close()
	return data, true
}

// Has reports whether the key is present.
func (store *PebbleStore) Has(key []byte) bool {
	_, closer, err := store.db.Get(key)
	if err != nil {
		return false
	}
	closer.Close()
	return true
}

// Delete deletes a key/value pair.
func (store *PebbleStore) Delete(key []byte) error {
	return store.db.Delete(key, pebble.Sync)
}

// Iterate calls f for every key/value pair until f returns false.
func (store *PebbleStore) Iterate(f func(key, data []byte) bool) error {
	it, err := store.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		if !f(it.Key(), it.Value()) {
			return nil
		}
	}
	return it.Error()
}

// Count returns the count of records stored. Pebble keeps no live record
// count, so this walks the iterator.
func (store *PebbleStore) Count() (count uint64) {
	it, err := store.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		count++
	}
	return count
}

// Close flushes and closes the database.
func (store *PebbleStore) Close() error {
	if err := store.db.Flush(); err != nil {
		return err
	}
	return store.db.Close()
}
