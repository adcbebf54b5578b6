package coordinator

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Interface Methods (docu see coordinator/interface.go)
// --------------------------------------------------------------------------

func (c *coordinatorImpl) TryLock(ctx context.Context, resources []string, mode lockstate.Mode) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.TryLock")
	defer span.End()

	resources, err := normalize(resources, mode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return false, err
	}
	span.SetAttributes(
		attribute.StringSlice("lock.resources", resources),
		attribute.String("lock.mode", string(mode)),
		attribute.String("lock.holder", c.holder),
	)

	for attempt := 1; ; attempt++ {
		granted, conflict, err := c.tryAcquire(ctx, resources, mode)
		if err != nil {
			countAcquire(mode, resultError)
			span.RecordError(err)
			span.SetStatus(codes.Error, "acquire failed")
			return false, err
		}
		if !conflict {
			span.SetAttributes(attribute.Bool("lock.granted", granted), attribute.Int("lock.attempts", attempt))
			if granted {
				countAcquire(mode, resultGranted)
				plog.Debugf("%s locked %s (%s)", c.holder, strings.Join(resources, ","), mode)
			} else {
				countAcquire(mode, resultDenied)
			}
			return granted, nil
		}

		// someone changed one of the records between our read and our write, start over
		conflictsTotal.Inc()
		plog.Debugf("conflict while locking %s (attempt %d), retrying", strings.Join(resources, ","), attempt)
		if err := ctx.Err(); err != nil {
			return false, err
		}
	}
}

func (c *coordinatorImpl) Lock(ctx context.Context, resources []string, mode lockstate.Mode) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for waiting := false; ; waiting = true {
		granted, err := c.TryLock(ctx, resources, mode)
		if err != nil {
			return err
		}
		if granted {
			return nil
		}
		if !waiting {
			plog.Infof("resources %s are locked, waiting (retry every %s)", strings.Join(resources, ","), c.pollInterval)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// tryAcquire makes a single attempt to lock all resources.
// It reads every record, and if all of them admit mode, writes the new records in one
// compare-and-update conditioned on the values that were read.
// conflict is true if the write failed because a record changed in the meantime.
func (c *coordinatorImpl) tryAcquire(ctx context.Context, resources []string, mode lockstate.Mode) (granted, conflict bool, err error) {
	snaps, err := c.read(ctx, resources)
	if err != nil {
		return false, false, fmt.Errorf("lock %s: %w", strings.Join(resources, ","), err)
	}

	updates := make([]store.Update, 0, len(snaps))
	for _, snap := range snaps {
		next, err := snap.record.Acquire(mode, c.holder)
		if err != nil {
			// nothing has been written yet, a denied request leaves every record untouched
			plog.Debugf("%s: %v", snap.resource, err)
			return false, false, nil
		}
		value, err := lockstate.Encode(next)
		if err != nil {
			return false, false, fmt.Errorf("lock %s: %w", snap.resource, err)
		}
		updates = append(updates, store.Update{Key: snap.key, Expected: snap.raw, Value: value})
	}

	ok, err := c.store.CompareAndUpdate(ctx, updates...)
	if err != nil {
		return false, false, fmt.Errorf("lock %s: %w", strings.Join(resources, ","), err)
	}
	return ok, !ok, nil
}
