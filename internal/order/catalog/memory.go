package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/benningd54/Anlab/internal/order/pricing"
)

// Memory is a map-backed catalog for tests and local development.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]pricing.Entry
}

func NewMemory(entries ...pricing.Entry) *Memory {
	m := &Memory{entries: make(map[string]pricing.Entry, len(entries))}
	for _, e := range entries {
		m.entries[e.Code] = e
	}
	return m
}

func (m *Memory) Upsert(e pricing.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Code] = e
}

func (m *Memory) FindByCodes(_ context.Context, codes []string) ([]pricing.Entry, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []pricing.Entry
	var missing []string
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		if e, ok := m.entries[code]; ok {
			entries = append(entries, e)
		} else {
			missing = append(missing, code)
		}
	}
	return entries, missing, nil
}

func (m *Memory) ListActive(_ context.Context) ([]pricing.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]pricing.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Code < entries[j].Code })

	return entries, nil
}
