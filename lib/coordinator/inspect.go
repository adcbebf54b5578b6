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

func (c *coordinatorImpl) Check(ctx context.Context) (map[string]lockstate.Record, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Check")
	defer span.End()

	keys, err := c.store.Keys(ctx, c.keys.Prefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list locks failed")
		return nil, fmt.Errorf("list locks: %w", err)
	}

	locks := make(map[string]lockstate.Record, len(keys))
	for _, key := range keys {
		resource, ok := c.keys.Resource(key)
		if !ok {
			continue
		}
		snap, err := c.readOne(ctx, resource)
		switch {
		case errors.Is(err, store.ErrCorruptRecord):
			plog.Warningf("skipping %s: %v", resource, err)
			continue
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "read lock failed")
			return nil, err
		case snap.record.IsFree():
			// released since the keys were listed
			continue
		}
		locks[resource] = snap.record
	}
	span.SetAttributes(attribute.Int("lock.count", len(locks)))
	return locks, nil
}
