package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

// backendsUnderTest returns one fresh store per backend. Pebble is exercised
// through the same contract even though it is not the default.
func backendsUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	pogrebStore, err := NewPogrebStore(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}

	pebbleStore, err := NewPebbleStore(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"pogreb": pogrebStore,
		"pebble": pebbleStore,
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			key := []byte("block-1")
			value := []byte("payload")

			if s.Has(key) {
				t.Fatal("Has() on empty store")
			}
			if _, found := s.Get(key); found {
				t.Fatal("Get() on empty store")
			}

			if err := s.Set(key, value); err != nil {
				t.Fatal(err)
			}
			if !s.Has(key) {
				t.Fatal("Has() after Set")
			}
			got, found := s.Get(key)
			if !found || !bytes.Equal(got, value) {
				t.Fatalf("Get() = %q, %v", got, found)
			}
			if s.Count() != 1 {
				t.Fatalf("Count() = %d, want 1", s.Count())
			}

			// overwrite applies the new value
			if err := s.Set(key, []byte("v2")); err != nil {
				t.Fatal(err)
			}
			got, _ = s.Get(key)
			if !bytes.Equal(got, []byte("v2")) {
				t.Fatalf("Get() after overwrite = %q", got)
			}
			if s.Count() != 1 {
				t.Fatalf("Count() after overwrite = %d, want 1", s.Count())
			}

			if err := s.Delete(key); err != nil {
				t.Fatal(err)
			}
			if s.Has(key) {
				t.Fatal("Has() after Delete")
			}
			if s.Count() != 0 {
				t.Fatalf("Count() after Delete = %d, want 0", s.Count())
			}
		})
	}
}

func TestStoreIterate(t *testing.T) {
	for name, s := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			for _, key := range []string{"a", "b", "c"} {
				if err := s.Set([]byte(key), []byte("v-"+key)); err != nil {
					t.Fatal(err)
				}
			}

			seen := map[string]string{}
			err := s.Iterate(func(key, data []byte) bool {
				seen[string(key)] = string(data)
				return true
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(seen) != 3 || seen["a"] != "v-a" || seen["c"] != "v-c" {
				t.Fatalf("Iterate() visited %v", seen)
			}

			// early stop
			visited := 0
			err = s.Iterate(func(key, data []byte) bool {
				visited++
				return false
			})
			if err != nil || visited != 1 {
				t.Fatalf("Iterate() early stop visited %d, err %v", visited, err)
			}
		})
	}
}

func TestNewBackendSelection(t *testing.T) {
	s, err := New(BackendMemory, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("New(memory) = %T", s)
	}

	if _, err := New("bolt", ""); err != ErrUnknownBackend {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}

	s, err = New("", filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*PogrebStore); !ok {
		t.Fatalf("New(\"\") = %T, want pogreb default", s)
	}
}
