package coordinator

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// --------------------------------------------------------------------------
// Interface Methods (docu see coordinator/interface.go)
// --------------------------------------------------------------------------

func (c *coordinatorImpl) Unlock(ctx context.Context, resources []string, mode lockstate.Mode) error {
	if len(resources) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "coordinator.Unlock")
	defer span.End()

	resources, err := normalize(resources, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return err
	}
	span.SetAttributes(
		attribute.StringSlice("lock.resources", resources),
		attribute.String("lock.mode", string(mode)),
		attribute.String("lock.holder", c.holder),
	)

	// every resource is released on its own, a failure on one must not keep the others locked
	var errs []error
	for _, resource := range resources {
		if err := c.release(ctx, resource, mode); err != nil {
			countRelease(mode, resultError)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return err
	}
	return nil
}

func (c *coordinatorImpl) UnlockAll(ctx context.Context) (int, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.UnlockAll")
	defer span.End()

	keys, err := c.store.Keys(ctx, c.keys.Prefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list locks failed")
		return 0, fmt.Errorf("list locks: %w", err)
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete locks failed")
		return 0, fmt.Errorf("remove locks: %w", err)
	}
	span.SetAttributes(attribute.Int("lock.removed", len(keys)))
	plog.Warningf("%s removed all %d locks in namespace %q", c.holder, len(keys), c.keys.Prefix())
	return len(keys), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// release removes the holder from a single resource, retrying until the write is not
// interrupted by a concurrent change.
func (c *coordinatorImpl) release(ctx context.Context, resource string, mode lockstate.Mode) error {
	for {
		snap, err := c.readOne(ctx, resource)
		if err != nil {
			return fmt.Errorf("unlock %s: %w", resource, err)
		}

		next, held := snap.record.Release(mode, c.holder)
		if !held {
			countRelease(mode, resultNotHeld)
			plog.Warningf("failed to unlock %s: not held by %s in %s mode (current state: %s)", resource, c.holder, mode, snap.record)
			return nil
		}

		value, err := lockstate.Encode(next)
		if err != nil {
			return fmt.Errorf("unlock %s: %w", resource, err)
		}

		ok, err := c.store.CompareAndUpdate(ctx, store.Update{Key: snap.key, Expected: snap.raw, Value: value})
		if err != nil {
			return fmt.Errorf("unlock %s: %w", resource, err)
		}
		if ok {
			countRelease(mode, resultReleased)
			plog.Debugf("%s unlocked %s (%s)", c.holder, resource, mode)
			return nil
		}

		conflictsTotal.Inc()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
