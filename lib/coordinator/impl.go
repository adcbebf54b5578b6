package coordinator

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"slices"
	"time"
)

var (
	plog = logger.GetLogger("coordinator")
)

type coordinatorImpl struct {
	store        store.IStore
	keys         lockstate.Keyspace
	holder       string
	pollInterval time.Duration
	tracer       trace.Tracer
}

// NewCoordinator creates a coordinator on top of s. A nil opts selects DefaultOptions.
// The coordinator keeps no lock state of its own, any number of coordinators may share a store.
func NewCoordinator(s store.IStore, opts *Options) ICoordinator {
	o := opts.withDefaults()
	return &coordinatorImpl{
		store:        s,
		keys:         lockstate.NewKeyspace(o.Namespace),
		holder:       o.Holder,
		pollInterval: o.PollInterval,
		tracer:       otel.Tracer("srvcoord/coordinator"),
	}
}

func (c *coordinatorImpl) Holder() string {
	return c.holder
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// normalize returns the sorted and deduplicated resource ids.
// Sorting gives every request touching the same resources the same key order.
func normalize(resources []string, mode lockstate.Mode) ([]string, error) {
	if !mode.Valid() {
		return nil, store.NewError(store.RetCInvalidRequest, fmt.Sprintf("invalid lock mode %q", string(mode)))
	}
	if len(resources) == 0 {
		return nil, store.NewError(store.RetCInvalidRequest, "no resources given")
	}
	out := slices.Clone(resources)
	slices.Sort(out)
	out = slices.Compact(out)
	if out[0] == "" {
		return nil, store.NewError(store.RetCInvalidRequest, "empty resource id")
	}
	return out, nil
}

// snapshot is the state of one resource as read from the store.
type snapshot struct {
	resource string
	key      string
	raw      []byte // nil if the key does not exist
	record   lockstate.Record
}

// read fetches and decodes the records of all resources.
func (c *coordinatorImpl) read(ctx context.Context, resources []string) ([]snapshot, error) {
	snaps := make([]snapshot, 0, len(resources))
	for _, resource := range resources {
		snap, err := c.readOne(ctx, resource)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (c *coordinatorImpl) readOne(ctx context.Context, resource string) (snapshot, error) {
	key := c.keys.Key(resource)
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return snapshot{}, fmt.Errorf("read lock %s: %w", resource, err)
	}
	if !found {
		raw = nil
	}
	record, err := lockstate.Decode(raw)
	if err != nil {
		return snapshot{}, fmt.Errorf("read lock %s: %w", resource, err)
	}
	return snapshot{resource: resource, key: key, raw: raw, record: record}, nil
}
