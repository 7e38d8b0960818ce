package storage

import (
	"context"
	"maps"
	"sync"
)

// Memory is a process-local backend for tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte

	saves int
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.data[key]
	return raw, ok, nil
}

func (m *Memory) Save(_ context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	maps.Copy(m.data, entries)
	m.saves++

	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Saves returns how many batches reached the backend.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}
