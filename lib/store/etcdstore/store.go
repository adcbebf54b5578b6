package etcdstore

import (
	"context"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"io"
	"strings"
	"time"
)

var (
	plog = logger.GetLogger("store")
)

const (
	// DefaultEndpoint is used when no endpoint is configured.
	DefaultEndpoint = "localhost:2379"

	// maxTxnOps is the default --max-txn-ops limit of an etcd server.
	maxTxnOps = 128
)

type storeImpl struct {
	kv      clientv3.KV
	closer  io.Closer
	timeout time.Duration
	tracer  trace.Tracer
}

// NewEtcdStore creates a store backed by the etcd cluster reachable at endpoints.
// timeout is used as dial timeout and bounds every single request.
func NewEtcdStore(endpoints []string, timeout time.Duration) (store.IStore, error) {
	if len(endpoints) == 0 {
		endpoints = []string{DefaultEndpoint}
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, store.WrapError(store.RetCStoreUnavailable, err, "connect etcd %s", strings.Join(endpoints, ","))
	}
	s := newStore(cli.KV, cli)
	s.timeout = timeout
	return s, nil
}

// NewEtcdStoreFromKV wraps an existing KV client. Close does not close the client.
func NewEtcdStoreFromKV(kv clientv3.KV) store.IStore {
	return newStore(kv, nil)
}

func newStore(kv clientv3.KV, closer io.Closer) *storeImpl {
	return &storeImpl{
		kv:     kv,
		closer: closer,
		tracer: otel.Tracer("srvcoord/store/etcd"),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key string) ([]byte, bool, error) {
	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Get(opCtx, key)
	if err != nil {
		return nil, false, store.Unavailable(ctx, err, "get %s", key)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

func (s *storeImpl) CompareAndUpdate(ctx context.Context, updates ...store.Update) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}
	if len(updates) > maxTxnOps {
		return false, store.NewError(store.RetCInvalidRequest, "too many updates for a single etcd transaction")
	}

	ctx, span := s.tracer.Start(ctx, "store.etcd.CompareAndUpdate")
	defer span.End()

	cmps := make([]clientv3.Cmp, 0, len(updates))
	ops := make([]clientv3.Op, 0, len(updates))
	keys := make([]string, 0, len(updates))
	for _, u := range updates {
		keys = append(keys, u.Key)
		if u.Expected == nil {
			// a key that does not exist has create revision 0
			cmps = append(cmps, clientv3.Compare(clientv3.CreateRevision(u.Key), "=", 0))
		} else {
			cmps = append(cmps, clientv3.Compare(clientv3.Value(u.Key), "=", string(u.Expected)))
		}
		if u.Value == nil {
			ops = append(ops, clientv3.OpDelete(u.Key))
		} else {
			ops = append(ops, clientv3.OpPut(u.Key, string(u.Value)))
		}
	}
	span.SetAttributes(attribute.StringSlice("etcd.keys", keys))

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Txn(opCtx).If(cmps...).Then(ops...).Commit()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "etcd transaction failed")
		return false, store.Unavailable(ctx, err, "compare and update %s", strings.Join(keys, ","))
	}
	if !resp.Succeeded {
		span.SetAttributes(attribute.Bool("etcd.conflict", true))
	}
	return resp.Succeeded, nil
}

func (s *storeImpl) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "store.etcd.Keys")
	defer span.End()
	span.SetAttributes(attribute.String("etcd.prefix", prefix))

	opCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Get(opCtx, prefix, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list keys from etcd")
		return nil, store.Unavailable(ctx, err, "list %s", prefix)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key))
	}
	return keys, nil
}

func (s *storeImpl) Delete(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += maxTxnOps {
		end := min(start+maxTxnOps, len(keys))

		ops := make([]clientv3.Op, 0, end-start)
		for _, key := range keys[start:end] {
			ops = append(ops, clientv3.OpDelete(key))
		}

		opCtx, cancel := s.withTimeout(ctx)
		_, err := s.kv.Txn(opCtx).Then(ops...).Commit()
		cancel()
		if err != nil {
			return store.Unavailable(ctx, err, "delete %s", strings.Join(keys[start:end], ","))
		}
		plog.Debugf("deleted %d keys", end-start)
	}
	return nil
}

func (s *storeImpl) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// withTimeout bounds a single request. Without a configured timeout ctx is used as is.
func (s *storeImpl) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
