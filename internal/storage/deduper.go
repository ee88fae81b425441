package storage

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
)

// Deduper guards against handling the same raw event twice
type Deduper interface {
	// Seen marks key and reports whether it had been marked before
	Seen(ctx context.Context, key string) (bool, error)
	// Forget clears key, used when the event that marked it failed to commit
	Forget(ctx context.Context, key string) error
}

// MemoryDeduper remembers keys for the life of the process
type MemoryDeduper struct {
	keys *xsync.Map[string, struct{}]
}

// NewMemoryDeduper creates an empty in-memory deduper
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{keys: xsync.NewMap[string, struct{}]()}
}

func (m *MemoryDeduper) Seen(ctx context.Context, key string) (bool, error) {
	_, loaded := m.keys.LoadOrStore(key, struct{}{})
	return loaded, nil
}

func (m *MemoryDeduper) Forget(ctx context.Context, key string) error {
	m.keys.Delete(key)
	return nil
}

// NopDeduper never reports a duplicate
type NopDeduper struct{}

func (NopDeduper) Seen(ctx context.Context, key string) (bool, error) { return false, nil }

func (NopDeduper) Forget(ctx context.Context, key string) error { return nil }
