package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// KV is a flat string-keyed byte store, the server-side counterpart of a
// browser's local storage. Keys returns keys in the order they were first
// written. Implementations must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

var ErrClosed = errors.New("store closed")

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open creates a KV for the named driver. path is ignored by the memory driver.
func Open(driver, path string) (KV, error) {
	switch strings.ToLower(driver) {
	case DriverMemory:
		return NewMemoryKV(), nil
	case DriverFile:
		return NewFileKV(path)
	case DriverSQLite:
		return NewSQLiteKV(path)
	default:
		return nil, errors.Errorf("unknown store driver: %s", driver)
	}
}

type namespaced struct {
	kv KV
	ns string
}

// Namespace returns a view of kv where every key is transparently prefixed
// with ns. Closing the view does not close kv.
func Namespace(kv KV, ns string) KV {
	return &namespaced{kv: kv, ns: ns}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.kv.Get(ctx, n.ns+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.kv.Set(ctx, n.ns+key, value)
}

func (n *namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.kv.Keys(ctx, n.ns+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, n.ns))
	}
	return out, nil
}

func (n *namespaced) Close() error { return nil }
