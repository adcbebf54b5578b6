// Package lockstate defines how the lock state of a single resource is represented,
// how it changes and how it is stored.
//
// A resource is in one of three states:
//
//   - free: nobody holds it. A free resource has no record in the store at all.
//   - shared: one or more holders hold it in shared mode.
//   - exclusive: exactly one holder holds it.
//
// Transitions (Record.Acquire, Record.Release) are pure functions on Record values.
// They never touch the store, the coordinator reads a record, computes the next one and
// writes it back with a conditional update.
//
// Stored Format:
//
//	key:   <namespace><resource>          e.g. "server_coordinator:42"
//	value: {"mode":"shared","holders":["alice@node1","bob@node2"]}
//
// A shared record has one holder entry per granted lock, so a holder that locked a resource
// twice is listed twice and keeps it until it released both. The entries are kept sorted,
// so the encoding of a record is deterministic and can be used as the expected value of a
// compare-and-update.
package lockstate
