// SPDX-License-Identifier: MIT

package storage

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Memory is an in-memory Reader used by tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory creates a Memory reader seeded with the given objects.
func NewMemory(objects map[string][]byte) *Memory {
	cp := make(map[string][]byte, len(objects))
	for k, v := range objects {
		cp[k] = v
	}
	return &Memory{objects: cp}
}

// Put stores or replaces an object.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// ReadText implements Reader.
func (m *Memory) ReadText(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return "", NotFoundError(key)
	}
	return string(data), nil
}

// Stream implements Reader.
func (m *Memory) Stream(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, NotFoundError(key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Stat implements Reader.
func (m *Memory) Stat(_ context.Context, key string) (ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, NotFoundError(key)
	}
	return ObjectInfo{Key: key, Size: int64(len(data))}, nil
}
