// Package coordinator implements all-or-nothing locking of sets of resources
// ("servers") on top of any store that implements the store.IStore interface.
//
// The coordinator only ever stores in the provided IStore and has no other internal
// state. Therefore it is safe to create it multiple times on the same store, from
// multiple processes or machines. As long as they share the store, all locks work as expected.
//
// Lock Modes:
//
//   - exclusive: The resource is held by exactly one holder, no other lock of any kind is possible.
//   - shared: Any number of holders can hold the resource at the same time, an exclusive lock
//     is not possible while one of them is left.
//
// Implementation Approach:
//
//	Every resource has one lock record (see lockstate) stored under "<namespace><resource>".
//	A free resource has no record.
//
//	- Acquisition: All records of the request are read. If any of them does not admit the
//	  requested mode, the request is denied and nothing is written. Otherwise the new records
//	  are written in a single CompareAndUpdate that is conditioned on exactly the values that
//	  were read. If another caller changed any of the records in between, the update fails as a
//	  whole and the attempt starts over with fresh state. A request can therefore never end up
//	  holding only part of its resources.
//
//	- Blocking: Lock repeats TryLock every PollInterval until it is granted or the context is
//	  cancelled. Waiters are not queued. Whoever tries first after a release wins, and a steady
//	  stream of shared locks can keep an exclusive waiter waiting forever.
//
//	- Release: Every resource is released on its own with the same read and compare-and-update
//	  cycle. Releasing a resource that is not held by the holder (or held in the other mode) is
//	  logged and ignored, so cleanup code can always call Unlock.
//
//	- Inspection: Check lists all records of the namespace and reads them one by one. Each
//	  reported state was valid at some point during the call.
//
// Holders:
//
//	A lock is owned by the holder identity of the coordinator that acquired it. DefaultHolder
//	("user@hostname") is stable across processes, which allows taking a lock in one command and
//	releasing it in another. Every shared acquisition is recorded separately, so when two jobs of
//	the same user lock a server shared, the first unlock releases only one of the two locks.
//	NewSessionHolder adds a random suffix for callers that must be told apart.
//
// Lock Expiry:
//
//	Locks never expire. A holder that crashes keeps its locks until they are released with its
//	identity or removed with UnlockAll.
//
// Usage Example:
//
//	c := coordinator.NewCoordinator(s, coordinator.DefaultOptions())
//
//	granted, err := c.TryLock(ctx, []string{"42", "49"}, lockstate.ModeShared)
//	if err != nil {
//	    // the store could not be reached
//	}
//	if granted {
//	    defer c.Unlock(context.Background(), []string{"42", "49"}, lockstate.ModeShared)
//	    // use the servers
//	}
package coordinator
