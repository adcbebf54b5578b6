package coordinator

import (
	"context"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
)

// ICoordinator defines the interface for locking sets of resources.
// All methods act on behalf of the holder the coordinator was created with.
type ICoordinator interface {
	// TryLock tries to lock all given resources in the given mode without waiting.
	// Either all resources are locked or none. The boolean return value reports whether
	// the lock was granted, a denied lock is not an error.
	// An empty resource set results in store.ErrInvalidRequest.
	TryLock(ctx context.Context, resources []string, mode lockstate.Mode) (granted bool, err error)

	// Lock locks all given resources in the given mode and waits until this is possible.
	// Cancelling ctx stops waiting and returns the context error, nothing stays locked in that case.
	Lock(ctx context.Context, resources []string, mode lockstate.Mode) (err error)

	// Unlock releases the locks this holder has on the given resources in the given mode.
	// Resources not held (or held in the other mode) are skipped, this is not an error.
	Unlock(ctx context.Context, resources []string, mode lockstate.Mode) (err error)

	// Check returns the lock state of every currently locked resource.
	// The state of each resource was valid at some point during the call, the result is not
	// a snapshot of a single instant.
	Check(ctx context.Context) (locks map[string]lockstate.Record, err error)

	// UnlockAll removes every lock in the namespace, regardless of holder and mode.
	// It returns the number of removed locks.
	UnlockAll(ctx context.Context) (removed int, err error)

	// Holder returns the identity this coordinator locks as.
	Holder() string
}
