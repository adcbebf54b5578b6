package memstore

import (
	"bytes"
	"context"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
	"strings"
	"sync"
)

type storeImpl struct {
	data *xsync.MapOf[string, []byte]

	// writeMu serializes all writes so a batch of updates is compared and applied atomically.
	// Reads do not take the lock, they only ever observe committed values.
	writeMu sync.Mutex
}

// NewMemoryStore creates a new in-process store instance.
// This store is not shared between processes, use it when all coordinators
// live in the same program (embedding, tests).
func NewMemoryStore() store.IStore {
	return &storeImpl{
		data: xsync.NewMapOf[string, []byte](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	val, ok := s.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(val), true, nil
}

func (s *storeImpl) CompareAndUpdate(ctx context.Context, updates ...store.Update) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// compare all keys first, nothing is written unless every comparison holds
	for _, u := range updates {
		current, found := s.data.Load(u.Key)
		if !matches(u.Expected, current, found) {
			return false, nil
		}
	}

	for _, u := range updates {
		if u.Value == nil {
			s.data.Delete(u.Key)
		} else {
			s.data.Store(u.Key, bytes.Clone(u.Value))
		}
	}
	return true, nil
}

func (s *storeImpl) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	s.data.Range(func(key string, _ []byte) bool {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return true
	})
	return keys, nil
}

func (s *storeImpl) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, key := range keys {
		s.data.Delete(key)
	}
	return nil
}

func (s *storeImpl) Close() error {
	return nil
}

// matches reports whether the current state of a key is the expected one.
// A nil expected value only matches a missing key.
func matches(expected, current []byte, found bool) bool {
	if expected == nil {
		return !found
	}
	return found && bytes.Equal(expected, current)
}
