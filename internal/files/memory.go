package files

import (
	"context"
	"fmt"
	"sync"
)

// MemoryOrigin is the default origin of the in-memory store.
const MemoryOrigin = "memory://portfolio/"

// Memory keeps uploaded objects in process memory.
type Memory struct {
	origin string

	mu      sync.Mutex
	objects map[string]File
}

// NewMemory creates an in-memory store. An empty origin selects MemoryOrigin.
func NewMemory(origin string) *Memory {
	if origin == "" {
		origin = MemoryOrigin
	}
	return &Memory{origin: origin, objects: make(map[string]File)}
}

// Upload implements Store.
func (m *Memory) Upload(ctx context.Context, objectPath string, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Data = append([]byte(nil), f.Data...)
	m.objects[objectPath] = f
	return objectPath, nil
}

// PublicURL implements Store.
func (m *Memory) PublicURL(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ref]; !ok {
		return "", fmt.Errorf("resolve %s: %w", ref, ErrNotFound)
	}
	return m.origin + EscapePath(ref), nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, urlOrRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref := RefFromURL(m.origin, urlOrRef)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[ref]; !ok {
		return fmt.Errorf("delete %s: %w", ref, ErrNotFound)
	}
	delete(m.objects, ref)
	return nil
}

// Origin implements Store.
func (m *Memory) Origin() string { return m.origin }

// Object returns a stored object by path.
func (m *Memory) Object(objectPath string) (File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.objects[objectPath]
	return f, ok
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
