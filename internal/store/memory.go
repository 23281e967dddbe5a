package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Memory is an in-process Collection. It backs tests and single-process
// development runs.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]json.RawMessage
	subs map[string]map[chan Snapshot]struct{}
}

// NewMemory creates an empty in-memory collection store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]json.RawMessage),
		subs: make(map[string]map[chan Snapshot]struct{}),
	}
}

// Subscribe implements Collection.
func (m *Memory) Subscribe(ctx context.Context, path string) (<-chan Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	if m.subs[path] == nil {
		m.subs[path] = make(map[chan Snapshot]struct{})
	}
	m.subs[path][ch] = struct{}{}
	Offer(ch, m.snapshotLocked(path))
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[path], ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// FetchOnce implements Collection.
func (m *Memory) FetchOnce(ctx context.Context, path string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(path), nil
}

// Get implements Collection.
func (m *Memory) Get(ctx context.Context, path, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.data[path][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append(json.RawMessage(nil), doc...), nil
}

// WriteAt implements Collection.
func (m *Memory) WriteAt(ctx context.Context, path, key string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("invalid JSON document for %s/%s", path, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(path, key, value)
	m.publishLocked(path)
	return nil
}

// MergeAt implements Collection.
func (m *Memory) MergeAt(ctx context.Context, path, key string, partial json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	merged, err := MergeDocuments(m.data[path][key], partial)
	if err != nil {
		return err
	}
	m.putLocked(path, key, merged)
	m.publishLocked(path)
	return nil
}

// DeleteAt implements Collection.
func (m *Memory) DeleteAt(ctx context.Context, path, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[path][key]; !ok {
		return nil
	}
	delete(m.data[path], key)
	m.publishLocked(path)
	return nil
}

func (m *Memory) putLocked(path, key string, value json.RawMessage) {
	if m.data[path] == nil {
		m.data[path] = make(map[string]json.RawMessage)
	}
	m.data[path][key] = append(json.RawMessage(nil), value...)
}

func (m *Memory) snapshotLocked(path string) Snapshot {
	return Snapshot{Path: path, Docs: m.data[path]}.Clone()
}

func (m *Memory) publishLocked(path string) {
	if len(m.subs[path]) == 0 {
		return
	}
	snap := m.snapshotLocked(path)
	for ch := range m.subs[path] {
		Offer(ch, snap.Clone())
	}
}
