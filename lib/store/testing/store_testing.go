package testing

import (
	"bytes"
	"context"
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"sort"
	"strconv"
	"sync"
	"testing"
)

// StoreFactory is a function that creates a new, empty instance of an IStore implementation.
// The store is closed by the test suite.
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs a comprehensive test suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Get", func(t *testing.T) {
			testGet(t, factory(t))
		})

		t.Run("CreateIfAbsent", func(t *testing.T) {
			testCreateIfAbsent(t, factory(t))
		})

		t.Run("CompareAndSwap", func(t *testing.T) {
			testCompareAndSwap(t, factory(t))
		})

		t.Run("CompareAndDelete", func(t *testing.T) {
			testCompareAndDelete(t, factory(t))
		})

		t.Run("MultiKeyAtomicity", func(t *testing.T) {
			testMultiKeyAtomicity(t, factory(t))
		})

		t.Run("Keys", func(t *testing.T) {
			testKeys(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("ConcurrentIncrements", func(t *testing.T) {
			testConcurrentIncrements(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustGet(t *testing.T, s store.IStore, key string) ([]byte, bool) {
	t.Helper()
	value, found, err := s.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return value, found
}

func mustUpdate(t *testing.T, s store.IStore, updates ...store.Update) bool {
	t.Helper()
	ok, err := s.CompareAndUpdate(context.Background(), updates...)
	if err != nil {
		t.Fatalf("CompareAndUpdate failed: %v", err)
	}
	return ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testGet(t *testing.T, s store.IStore) {
	defer s.Close()

	if _, found := mustGet(t, s, "missing-key"); found {
		t.Errorf("Expected missing key to return found=false")
	}

	if !mustUpdate(t, s, store.Update{Key: "get-key", Value: []byte("value")}) {
		t.Fatalf("Expected create of get-key to succeed")
	}

	value, found := mustGet(t, s, "get-key")
	if !found {
		t.Fatalf("Expected get-key to exist")
	}
	if !bytes.Equal(value, []byte("value")) {
		t.Errorf("Expected value %q, got %q", "value", value)
	}

	// Get must return a copy
	value[0] = 'X'
	again, _ := mustGet(t, s, "get-key")
	if !bytes.Equal(again, []byte("value")) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testCreateIfAbsent(t *testing.T, s store.IStore) {
	defer s.Close()

	if !mustUpdate(t, s, store.Update{Key: "create-key", Value: []byte("first")}) {
		t.Fatalf("Expected first create to succeed")
	}
	if mustUpdate(t, s, store.Update{Key: "create-key", Value: []byte("second")}) {
		t.Errorf("Expected second create to fail, the key exists")
	}

	value, _ := mustGet(t, s, "create-key")
	if !bytes.Equal(value, []byte("first")) {
		t.Errorf("Expected value %q after failed create, got %q", "first", value)
	}
}

func testCompareAndSwap(t *testing.T, s store.IStore) {
	defer s.Close()

	mustUpdate(t, s, store.Update{Key: "cas-key", Value: []byte("v1")})

	if mustUpdate(t, s, store.Update{Key: "cas-key", Expected: []byte("wrong"), Value: []byte("v2")}) {
		t.Errorf("Expected swap with wrong expected value to fail")
	}
	if !mustUpdate(t, s, store.Update{Key: "cas-key", Expected: []byte("v1"), Value: []byte("v2")}) {
		t.Errorf("Expected swap with correct expected value to succeed")
	}
	if mustUpdate(t, s, store.Update{Key: "cas-key", Expected: []byte("v1"), Value: []byte("v3")}) {
		t.Errorf("Expected swap with stale expected value to fail")
	}
	if mustUpdate(t, s, store.Update{Key: "missing-cas-key", Expected: []byte("v1"), Value: []byte("v3")}) {
		t.Errorf("Expected swap on missing key with expected value to fail")
	}

	value, _ := mustGet(t, s, "cas-key")
	if !bytes.Equal(value, []byte("v2")) {
		t.Errorf("Expected value %q, got %q", "v2", value)
	}
	if _, found := mustGet(t, s, "missing-cas-key"); found {
		t.Errorf("Failed swap must not create the key")
	}
}

func testCompareAndDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	mustUpdate(t, s, store.Update{Key: "del-key", Value: []byte("v1")})

	if mustUpdate(t, s, store.Update{Key: "del-key", Expected: []byte("v2")}) {
		t.Errorf("Expected delete with wrong expected value to fail")
	}
	if _, found := mustGet(t, s, "del-key"); !found {
		t.Fatalf("Key must survive a failed conditional delete")
	}
	if !mustUpdate(t, s, store.Update{Key: "del-key", Expected: []byte("v1")}) {
		t.Errorf("Expected delete with correct expected value to succeed")
	}
	if _, found := mustGet(t, s, "del-key"); found {
		t.Errorf("Expected key to be deleted")
	}
}

func testMultiKeyAtomicity(t *testing.T, s store.IStore) {
	defer s.Close()

	mustUpdate(t, s, store.Update{Key: "multi-b", Value: []byte("taken")})

	// multi-a is free, multi-b is not what we expect: nothing may be written
	ok := mustUpdate(t, s,
		store.Update{Key: "multi-a", Value: []byte("mine")},
		store.Update{Key: "multi-b", Value: []byte("mine")},
	)
	if ok {
		t.Fatalf("Expected batch to fail because multi-b exists")
	}
	if _, found := mustGet(t, s, "multi-a"); found {
		t.Errorf("Failed batch must not write multi-a")
	}

	ok = mustUpdate(t, s,
		store.Update{Key: "multi-a", Value: []byte("mine")},
		store.Update{Key: "multi-b", Expected: []byte("taken"), Value: []byte("mine")},
		store.Update{Key: "multi-c", Value: []byte("mine")},
	)
	if !ok {
		t.Fatalf("Expected batch with matching expectations to succeed")
	}
	for _, key := range []string{"multi-a", "multi-b", "multi-c"} {
		value, found := mustGet(t, s, key)
		if !found || !bytes.Equal(value, []byte("mine")) {
			t.Errorf("Expected %s=%q, got %q (found=%v)", key, "mine", value, found)
		}
	}

	// mixed deletes and writes in one batch
	ok = mustUpdate(t, s,
		store.Update{Key: "multi-a", Expected: []byte("mine")},
		store.Update{Key: "multi-b", Expected: []byte("mine"), Value: []byte("yours")},
	)
	if !ok {
		t.Fatalf("Expected mixed batch to succeed")
	}
	if _, found := mustGet(t, s, "multi-a"); found {
		t.Errorf("Expected multi-a to be deleted")
	}
	if value, _ := mustGet(t, s, "multi-b"); !bytes.Equal(value, []byte("yours")) {
		t.Errorf("Expected multi-b=%q, got %q", "yours", value)
	}
}

func testKeys(t *testing.T, s store.IStore) {
	defer s.Close()

	for _, key := range []string{"ns:1", "ns:2", "ns:*weird?", "other:1", "nsx"} {
		mustUpdate(t, s, store.Update{Key: key, Value: []byte("x")})
	}

	keys, err := s.Keys(context.Background(), "ns:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	sort.Strings(keys)
	want := []string{"ns:*weird?", "ns:1", "ns:2"}
	if fmt.Sprint(keys) != fmt.Sprint(want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}

	keys, err = s.Keys(context.Background(), "empty:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys for unused prefix, got %v", keys)
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	mustUpdate(t, s,
		store.Update{Key: "d1", Value: []byte("x")},
		store.Update{Key: "d2", Value: []byte("x")},
		store.Update{Key: "d3", Value: []byte("x")},
	)

	if err := s.Delete(context.Background(), "d1", "d2", "never-existed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	for key, want := range map[string]bool{"d1": false, "d2": false, "d3": true} {
		if _, found := mustGet(t, s, key); found != want {
			t.Errorf("Expected %s found=%v after delete", key, want)
		}
	}

	if err := s.Delete(context.Background()); err != nil {
		t.Errorf("Delete without keys should be a no-op, got %v", err)
	}
}

func testConcurrentIncrements(t *testing.T, s store.IStore) {
	defer s.Close()

	const (
		workers    = 8
		increments = 25
		key        = "counter"
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < increments; i++ {
				for {
					current, found, err := s.Get(ctx, key)
					if err != nil {
						errs <- err
						return
					}
					n := 0
					var expected []byte
					if found {
						expected = current
						n, _ = strconv.Atoi(string(current))
					}
					ok, err := s.CompareAndUpdate(ctx, store.Update{
						Key:      key,
						Expected: expected,
						Value:    []byte(strconv.Itoa(n + 1)),
					})
					if err != nil {
						errs <- err
						return
					}
					if ok {
						break
					}
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Concurrent increment failed: %v", err)
	}

	value, _ := mustGet(t, s, key)
	if string(value) != strconv.Itoa(workers*increments) {
		t.Errorf("Expected counter %d, got %s (lost updates)", workers*increments, value)
	}
}
