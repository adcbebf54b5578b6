// Package store defines the contract between the lock coordinator and the external
// key-value store that holds all lock state.
//
// The coordinator never keeps lock state in memory across calls. Every decision is based
// on a fresh read from the store, and every transition is written with a conditional,
// atomic write so that no transition is ever based on stale state.
//
// Key Components:
//
//   - IStore Interface: The minimal set of primitives a backend has to offer: a point read
//     (Get), an atomic multi-key compare-and-update (CompareAndUpdate), prefix enumeration
//     (Keys) and unconditional deletion (Delete).
//
//   - Update: A single conditional write. A nil Expected value means "the key must not exist",
//     a nil Value means "delete the key". CompareAndUpdate applies a batch of updates
//     all-or-nothing.
//
//   - Error System: A structured error type using return codes. Backend failures and timeouts
//     are reported as RetCStoreUnavailable and must never be mistaken for "lock not available".
//     The sentinel errors ErrStoreUnavailable, ErrInvalidRequest and ErrCorruptRecord can be
//     matched with errors.Is.
//
// Implementations:
//
//	- Memory Store (memstore): An in-process store for embedding and tests. Reads are lock
//	  free, writes are serialized by a single mutex, which makes multi-key updates atomic.
//	  Available in the "github.com/ValentinKolb/srvcoord/lib/store/memstore" package.
//
//	- Redis Store (redisstore): Uses optimistic transactions (WATCH/MULTI/EXEC). Works with
//	  single node, sentinel and cluster deployments (in cluster mode all keys of one request
//	  must hash to the same slot, use a hash tag in the namespace).
//	  Available in the "github.com/ValentinKolb/srvcoord/lib/store/redisstore" package.
//
//	- Etcd Store (etcdstore): Uses etcd transactions guarded by value and create-revision
//	  comparisons.
//	  Available in the "github.com/ValentinKolb/srvcoord/lib/store/etcdstore" package.
//
// A conformance suite for all implementations lives in the
// "github.com/ValentinKolb/srvcoord/lib/store/testing" package.
package store
