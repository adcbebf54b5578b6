// Package testing provides a standardised conformance suite for implementations
// of the store.IStore interface.
//
// Every backend the coordinator can run on has to pass the same suite. It checks the
// semantics the lock protocol relies on: conditional creation, compare-and-swap,
// compare-and-delete, all-or-nothing batches, prefix enumeration and the absence of lost
// updates under concurrent read-modify-write loops.
//
// Example usage:
//
//	func Test(t *testing.T) {
//		storetesting.RunStoreTests(t, "MyStore", func(t *testing.T) store.IStore {
//			return NewMyStore()
//		})
//	}
package testing
