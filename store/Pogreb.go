/*
File Name:  Pogreb.go
Copyright:  2024 Lumen Network s.r.o.
*/

package store

import (
	"io"
	"log"

	"github.com/akrylysov/pogreb"
)

// PogrebStore is a key/value store using Pogreb. It is the default backend.
type PogrebStore struct {
	filename string
	db       *pogreb.DB
}

// NewPogrebStore creates a properly initialized Pogreb store.
func NewPogrebStore(filename string) (store *PogrebStore, err error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	// if the database does not exist, it will be created
	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, err
	}

	return &PogrebStore{
		filename: filename,
		db:       db,
	}, nil
}

// Set stores the key/value pair.
func (store *PogrebStore) Set(key []byte, data []byte) error {
	return store.db.Put(key, data)
}

// Get returns the value for the key if present.
func (store *PogrebStore) Get(key []byte) (data []byte, found bool) {
	value, err := store.db.Get(key)
	if err != nil || value == nil {
		return nil, false
	}
	return value, true
}

// Has reports whether the key is present.
func (store *PogrebStore) Has(key []byte) bool {
	found, err := store.db.Has(key)
	return err == nil && found
}

// Delete deletes a key/value pair.
func (store *PogrebStore) Delete(key []byte) error {
	return store.db.Delete(key)
}

// Iterate calls f for every key/value pair until f returns false.
func (store *PogrebStore) Iterate(f func(key, data []byte) bool) error {
	it := store.db.Items()
	for {
		key, data, err := it.Next()
		if err == pogreb.ErrIterationDone {
			return nil
		} else if err != nil {
			return err
		}

		if !f(key, data) {
			return nil
		}
	}
}

// Count returns the count of records stored.
func (store *PogrebStore) Count() uint64 {
	return uint64(store.db.Count())
}

// Close flushes and closes the database.
func (store *PogrebStore) Close() error {
	if err := store.db.Sync(); err != nil {
		return err
	}
	return store.db.Close()
}
