package storage

import (
	"context"
	"sync"

	"github.com/stele-indexer/internal/types"
)

type entityKey struct {
	kind Kind
	id   string
}

type snapshotKey struct {
	kind types.EntityKind
	id   string
}

type snapshotRow struct {
	bucket uint64
	body   []byte
}

// memoryState is the data held by a MemoryBackend or buffered by one of its transactions
type memoryState struct {
	entities    map[entityKey][]byte
	snapshots   map[snapshotKey]snapshotRow
	checkpoints map[string]uint64
}

func newMemoryState() *memoryState {
	return &memoryState{
		entities:    make(map[entityKey][]byte),
		snapshots:   make(map[snapshotKey]snapshotRow),
		checkpoints: make(map[string]uint64),
	}
}

// MemoryBackend keeps everything in process memory. It backs tests and
// dry runs without a database.
type MemoryBackend struct {
	mu    sync.RWMutex
	state *memoryState
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{state: newMemoryState()}
}

// NewMemoryStore returns a Store over a fresh MemoryBackend
func NewMemoryStore() *Store {
	return NewStore(NewMemoryBackend())
}

func (m *MemoryBackend) Get(ctx context.Context, kind Kind, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.state.entities[entityKey{kind, id}]
	return clone(body), ok, nil
}

func (m *MemoryBackend) Put(ctx context.Context, kind Kind, id string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.entities[entityKey{kind, id}] = clone(body)
	return nil
}

func (m *MemoryBackend) PutIfAbsent(ctx context.Context, kind Kind, id string, body []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := entityKey{kind, id}
	if _, ok := m.state.entities[k]; ok {
		return false, nil
	}
	m.state.entities[k] = clone(body)
	return true, nil
}

func (m *MemoryBackend) GetSnapshot(ctx context.Context, kind types.EntityKind, id string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.state.snapshots[snapshotKey{kind, id}]
	return clone(row.body), ok, nil
}

func (m *MemoryBackend) CreateSnapshot(ctx context.Context, kind types.EntityKind, id string, bucket uint64, body []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapshotKey{kind, id}
	if _, ok := m.state.snapshots[k]; ok {
		return false, nil
	}
	m.state.snapshots[k] = snapshotRow{bucket: bucket, body: clone(body)}
	return true, nil
}

func (m *MemoryBackend) LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	block, ok := m.state.checkpoints[name]
	return block, ok, nil
}

func (m *MemoryBackend) SaveCheckpoint(ctx context.Context, name string, block uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.checkpoints[name] = block
	return nil
}

// RunInTx buffers writes in an overlay and applies them only when fn succeeds.
// Transactions are serialized; the engine processes one event at a time anyway.
func (m *MemoryBackend) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error {
	tx := &memoryTx{parent: m, overlay: newMemoryState()}
	if err := fn(ctx, tx); err != nil {
		tx.done = true
		return err
	}
	tx.done = true

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range tx.overlay.entities {
		m.state.entities[k] = v
	}
	for k, v := range tx.overlay.snapshots {
		if _, ok := m.state.snapshots[k]; !ok {
			m.state.snapshots[k] = v
		}
	}
	for k, v := range tx.overlay.checkpoints {
		m.state.checkpoints[k] = v
	}
	return nil
}

// EntityCount returns the number of stored entities of kind
func (m *MemoryBackend) EntityCount(kind Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.state.entities {
		if k.kind == kind {
			n++
		}
	}
	return n
}

// SnapshotCount returns the number of stored snapshots of kind
func (m *MemoryBackend) SnapshotCount(kind types.EntityKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for k := range m.state.snapshots {
		if k.kind == kind {
			n++
		}
	}
	return n
}

// memoryTx reads through its overlay to the parent and writes only to the overlay
type memoryTx struct {
	parent  *MemoryBackend
	overlay *memoryState
	done    bool
}

func (t *memoryTx) Get(ctx context.Context, kind Kind, id string) ([]byte, bool, error) {
	if t.done {
		return nil, false, ErrTxDone
	}
	if body, ok := t.overlay.entities[entityKey{kind, id}]; ok {
		return clone(body), true, nil
	}
	return t.parent.Get(ctx, kind, id)
}

func (t *memoryTx) Put(ctx context.Context, kind Kind, id string, body []byte) error {
	if t.done {
		return ErrTxDone
	}
	t.overlay.entities[entityKey{kind, id}] = clone(body)
	return nil
}

func (t *memoryTx) PutIfAbsent(ctx context.Context, kind Kind, id string, body []byte) (bool, error) {
	_, ok, err := t.Get(ctx, kind, id)
	if err != nil || ok {
		return false, err
	}
	return true, t.Put(ctx, kind, id, body)
}

func (t *memoryTx) GetSnapshot(ctx context.Context, kind types.EntityKind, id string) ([]byte, bool, error) {
	if t.done {
		return nil, false, ErrTxDone
	}
	if row, ok := t.overlay.snapshots[snapshotKey{kind, id}]; ok {
		return clone(row.body), true, nil
	}
	return t.parent.GetSnapshot(ctx, kind, id)
}

func (t *memoryTx) CreateSnapshot(ctx context.Context, kind types.EntityKind, id string, bucket uint64, body []byte) (bool, error) {
	_, ok, err := t.GetSnapshot(ctx, kind, id)
	if err != nil || ok {
		return false, err
	}
	t.overlay.snapshots[snapshotKey{kind, id}] = snapshotRow{bucket: bucket, body: clone(body)}
	return true, nil
}

func (t *memoryTx) LoadCheckpoint(ctx context.Context, name string) (uint64, bool, error) {
	if t.done {
		return 0, false, ErrTxDone
	}
	if block, ok := t.overlay.checkpoints[name]; ok {
		return block, true, nil
	}
	return t.parent.LoadCheckpoint(ctx, name)
}

func (t *memoryTx) SaveCheckpoint(ctx context.Context, name string, block uint64) error {
	if t.done {
		return ErrTxDone
	}
	t.overlay.checkpoints[name] = block
	return nil
}

// RunInTx joins the enclosing transaction
func (t *memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error {
	if t.done {
		return ErrTxDone
	}
	return fn(ctx, t)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
