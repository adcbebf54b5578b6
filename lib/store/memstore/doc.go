// Package memstore provides an in-process implementation of the store.IStore interface.
//
// The store keeps all values in a concurrent map (xsync.MapOf). Reads never block,
// while CompareAndUpdate and Delete are serialized by a single mutex. This makes a batch of
// conditional updates atomic: either all keys hold their expected values and every update is
// applied, or nothing is written.
//
// Since the data lives in the memory of the current process, the memory store can only
// coordinate callers within one program. It is meant for embedding the coordinator in
// tests and single process tools. For coordination across processes and machines use the
// redisstore or etcdstore package.
//
// Usage Example:
//
//	s := memstore.NewMemoryStore()
//	c := coordinator.NewCoordinator(s, nil)
//	ok, err := c.TryLock(ctx, []string{"42"}, lockstate.ModeExclusive)
package memstore
