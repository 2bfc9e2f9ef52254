package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
)

// Memory keeps files in a map. It backs dry runs and tests.
type Memory struct {
	mu        sync.Mutex
	files     map[string][]byte
	OutputDir string
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Put stores a copy of data at p.
func (m *Memory) Put(p string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[p] = append([]byte(nil), data...)
}

func (m *Memory) Get(p string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[p]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Paths lists stored paths in sorted order.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, ok := m.Get(p)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return data, nil
}

func (m *Memory) WriteFile(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Put(p, data)
	return nil
}

func (m *Memory) OutputPath(input, suffix, ext string) string {
	return outputName(input, suffix, ext, m.OutputDir, path.Join, splitKey)
}
