package locator

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process detection store.
type Memory struct {
	mu   sync.RWMutex
	dets map[string]Detection
}

var _ Locator = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{dets: make(map[string]Detection)}
}

// Put replaces the latest detection for d.Label.
func (m *Memory) Put(d Detection) {
	m.mu.Lock()
	m.dets[d.Label] = d
	m.mu.Unlock()
}

// Delete forgets label.
func (m *Memory) Delete(label string) {
	m.mu.Lock()
	delete(m.dets, label)
	m.mu.Unlock()
}

// Clear forgets every detection.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.dets = make(map[string]Detection)
	m.mu.Unlock()
}

func (m *Memory) FindLatest(ctx context.Context, label string) (Detection, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.dets[label]
	return d, ok, nil
}

func (m *Memory) Labels(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	labels := make([]string, 0, len(m.dets))
	for l := range m.dets {
		labels = append(labels, l)
	}
	m.mu.RUnlock()
	sort.Strings(labels)
	return labels, nil
}
