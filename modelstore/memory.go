package modelstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests. Thread-safe.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]memorySnap
}

type memorySnap struct {
	data    []byte
	modTime time.Time
}

// NewMemory creates an empty in-memory snapshot store.
func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]memorySnap)}
}

// Put writes a snapshot. The data is copied out of r before it becomes
// visible, so readers never observe a partial write.
func (m *Memory) Put(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[name] = memorySnap{data: data, modTime: time.Now()}
	return nil
}

// Open opens a snapshot for reading.
func (m *Memory) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	snap, ok := m.snaps[name]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	// The stored slice is never mutated after Put, so the reader may
	// alias it.
	return io.NopCloser(bytes.NewReader(snap.data)), nil
}

// Stat returns snapshot metadata.
func (m *Memory) Stat(ctx context.Context, name string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[name]
	if !ok {
		return Info{}, ErrNotFound
	}
	return Info{Name: name, Size: int64(len(snap.data)), ModTime: snap.modTime}, nil
}

// List returns snapshot names starting with prefix, sorted.
func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.snaps {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a snapshot. Missing snapshots are ignored.
func (m *Memory) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, name)
	return nil
}
