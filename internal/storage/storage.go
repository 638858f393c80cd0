// Package storage provides the two key/value scopes the session layer persists into:
// a persistent scope that survives restarts and a session scope that dies with the process.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("storage: key not found")

// Scope is a typed key/value store. Values are copied in and out.
type Scope interface {
	Get(key string, out any) error
	Set(key string, value any) error
	Delete(keys ...string) error
}

// MemoryScope keeps values for the lifetime of the process.
type MemoryScope struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryScope() *MemoryScope {
	return &MemoryScope{values: make(map[string][]byte)}
}

func (m *MemoryScope) Get(key string, out any) error {
	m.mu.RLock()
	data, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return nil
}

func (m *MemoryScope) Set(key string, value any) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	m.mu.Lock()
	m.values[key] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryScope) Delete(keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.values, k)
	}
	m.mu.Unlock()
	return nil
}
