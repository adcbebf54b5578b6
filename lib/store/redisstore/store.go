package redisstore

import (
	"bytes"
	"context"
	"errors"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"strings"
	"sync"
)

var (
	plog = logger.GetLogger("store")
)

const (
	// DefaultURL is used when no url is configured.
	DefaultURL = "redis://localhost:6379/0"

	scanCount = 256
)

// errConflict aborts a WATCH transaction when a comparison fails.
var errConflict = errors.New("redisstore: compare failed")

type storeImpl struct {
	client redis.UniversalClient
	tracer trace.Tracer
}

// NewRedisStore connects to the redis server or cluster described by o.
// The connection is verified with a PING bounded by o.Timeout.
func NewRedisStore(o *Options) (store.IStore, error) {
	if o == nil {
		o = DefaultOptions()
	}
	client, err := NewClient(o)
	if err != nil {
		return nil, store.WrapError(store.RetCInvalidRequest, err, "configure redis client")
	}

	ctx := context.Background()
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, store.WrapError(store.RetCStoreUnavailable, err, "connect redis")
	}
	return NewRedisStoreFromClient(client), nil
}

// NewRedisStoreFromClient wraps an existing client. Closing the store closes the client.
func NewRedisStoreFromClient(client redis.UniversalClient) store.IStore {
	return &storeImpl{
		client: client,
		tracer: otel.Tracer("srvcoord/store/redis"),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.Unavailable(ctx, err, "get %s", key)
	}
	return value, true, nil
}

func (s *storeImpl) CompareAndUpdate(ctx context.Context, updates ...store.Update) (bool, error) {
	if len(updates) == 0 {
		return true, nil
	}

	ctx, span := s.tracer.Start(ctx, "store.redis.CompareAndUpdate")
	defer span.End()

	keys := make([]string, len(updates))
	for i, u := range updates {
		keys[i] = u.Key
	}
	span.SetAttributes(attribute.StringSlice("redis.keys", keys))

	// WATCH all keys, compare them inside the watch and only then queue the writes in MULTI/EXEC.
	// If any watched key changes between the reads and EXEC, redis aborts the transaction.
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, u := range updates {
			current, err := tx.Get(ctx, u.Key).Bytes()
			found := true
			if errors.Is(err, redis.Nil) {
				found = false
			} else if err != nil {
				return err
			}
			if !matches(u.Expected, current, found) {
				return errConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, u := range updates {
				if u.Value == nil {
					pipe.Del(ctx, u.Key)
				} else {
					pipe.Set(ctx, u.Key, u.Value, 0)
				}
			}
			return nil
		})
		return err
	}, keys...)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errConflict), errors.Is(err, redis.TxFailedErr):
		span.SetAttributes(attribute.Bool("redis.conflict", true))
		return false, nil
	case isCrossSlot(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, "keys in different slots")
		return false, store.WrapError(store.RetCInvalidRequest, err, "keys %s are stored in different cluster slots, use a hash tagged namespace", strings.Join(keys, ","))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "redis transaction failed")
		return false, store.Unavailable(ctx, err, "compare and update %s", strings.Join(keys, ","))
	}
}

func (s *storeImpl) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "store.redis.Keys")
	defer span.End()
	span.SetAttributes(attribute.String("redis.prefix", prefix))

	pattern := escapeGlob(prefix) + "*"

	var keys []string
	var err error
	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		// every master owns a part of the key space, ForEachMaster calls fn concurrently
		var mu sync.Mutex
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			nodeKeys, err := scan(ctx, node, pattern)
			if err != nil {
				return err
			}
			mu.Lock()
			keys = append(keys, nodeKeys...)
			mu.Unlock()
			return nil
		})
	} else {
		keys, err = scan(ctx, s.client, pattern)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "redis scan failed")
		return nil, store.Unavailable(ctx, err, "scan %s", pattern)
	}
	span.SetAttributes(attribute.Int("redis.key_count", len(keys)))
	return keys, nil
}

func (s *storeImpl) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// DEL with many keys fails with CROSSSLOT in cluster mode, delete one by one there
	if _, ok := s.client.(*redis.ClusterClient); ok {
		for _, key := range keys {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return store.Unavailable(ctx, err, "delete %s", key)
			}
		}
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return store.Unavailable(ctx, err, "delete %s", strings.Join(keys, ","))
	}
	return nil
}

func (s *storeImpl) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// scanner is the part of the redis client used for key enumeration.
type scanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// scan iterates the key space of one node with SCAN (KEYS would block the server).
func scan(ctx context.Context, client scanner, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	plog.Debugf("scan %s returned %d keys", pattern, len(keys))
	return dedupe(keys), nil
}

// dedupe removes duplicates, SCAN may return a key more than once.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// escapeGlob escapes the characters that have a special meaning in redis MATCH patterns.
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteRune('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// isCrossSlot reports whether a cluster rejected a request because its keys hash to different slots.
func isCrossSlot(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "CROSSSLOT") || strings.Contains(msg, "all keys to be in the same slot")
}

// matches reports whether the current state of a key is the expected one.
// A nil expected value only matches a missing key.
func matches(expected, current []byte, found bool) bool {
	if expected == nil {
		return !found
	}
	return found && bytes.Equal(expected, current)
}

