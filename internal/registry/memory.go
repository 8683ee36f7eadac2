package registry

import (
	"context"
	"sync"

	"github.com/dbnest/dbnest/internal/liveness"
)

// Compile-time interface satisfaction check.
var _ Store = (*Memory)(nil)

// Memory is an in-memory Store for tests. It applies the same lazy pruning
// semantics as the SQLite store but persists nothing.
type Memory struct {
	prober liveness.Prober

	mu      sync.Mutex
	entries map[string]Record
	order   []string // registration order, for first-match-wins port lookup
}

// NewMemory creates an empty in-memory store. A nil prober treats every
// positive pid as alive.
func NewMemory(prober liveness.Prober) *Memory {
	if prober == nil {
		prober = liveness.Func(func(pid int) bool { return pid > 0 })
	}
	return &Memory{prober: prober, entries: make(map[string]Record)}
}

// Register implements Store.
func (m *Memory) Register(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[rec.DataDir]; !ok {
		m.order = append(m.order, rec.DataDir)
	}
	m.entries[rec.DataDir] = rec
	return nil
}

// Unregister implements Store.
func (m *Memory) Unregister(_ context.Context, dataDir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(dataDir)
	return nil
}

// FindByDirectory implements Store.
func (m *Memory) FindByDirectory(_ context.Context, dataDir string) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.entries[dataDir]
	if !ok {
		return Record{}, false, nil
	}
	if !m.prober.Alive(rec.PID) {
		m.remove(dataDir)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// FindByPort implements Store.
func (m *Memory) FindByPort(_ context.Context, port int) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, dir := range append([]string(nil), m.order...) {
		rec, ok := m.entries[dir]
		if !ok || rec.Port != port {
			continue
		}
		if !m.prober.Alive(rec.PID) {
			m.remove(dir)
			continue
		}
		return rec, true, nil
	}
	return Record{}, false, nil
}

// List implements Store.
func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var live []Record
	for _, dir := range append([]string(nil), m.order...) {
		rec, ok := m.entries[dir]
		if !ok {
			continue
		}
		if !m.prober.Alive(rec.PID) {
			m.remove(dir)
			continue
		}
		live = append(live, rec)
	}
	return live, nil
}

// Close implements Store. No resources to release.
func (m *Memory) Close() error {
	return nil
}

// remove deletes an entry and its order slot. Callers must hold mu.
func (m *Memory) remove(dataDir string) {
	delete(m.entries, dataDir)
	for idx, dir := range m.order {
		if dir == dataDir {
			m.order = append(m.order[:idx], m.order[idx+1:]...)
			break
		}
	}
}
