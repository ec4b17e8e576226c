package history

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process PersistentStore. Failures injected with
// SetErrors are returned instead of touching the payload.
type MemoryBackend struct {
	mu      sync.Mutex
	payload []byte
	loadErr error
	saveErr error
	saves   int
}

// NewMemoryBackend returns an empty backend, optionally seeded with payload.
func NewMemoryBackend(payload []byte) *MemoryBackend {
	return &MemoryBackend{payload: payload}
}

func (m *MemoryBackend) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.payload == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(m.payload))
	copy(out, m.payload)
	return out, nil
}

func (m *MemoryBackend) Save(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.payload = append([]byte(nil), payload...)
	m.saves++
	return nil
}

func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.payload = nil
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// Payload returns the currently stored bytes.
func (m *MemoryBackend) Payload() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.payload...)
}

// SetErrors swaps the injected failures under the backend lock.
func (m *MemoryBackend) SetErrors(loadErr, saveErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = loadErr
	m.saveErr = saveErr
}

// SaveCount returns how many saves succeeded.
func (m *MemoryBackend) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
