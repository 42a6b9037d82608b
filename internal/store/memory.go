package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dalton-wilson/CBM/internal/table"
)

// Memory is a table store kept in process memory. Tables are copied on the
// way in and out so callers cannot alias stored data.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]byte)}
}

func (m *Memory) PutTable(_ context.Context, key string, t *table.Table) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode table %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[key] = body
	return nil
}

func (m *Memory) GetTable(_ context.Context, key string) (*table.Table, error) {
	m.mu.RLock()
	body, ok := m.tables[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("table %s: %w", key, ErrNotFound)
	}
	var t table.Table
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("decode table %s: %w", key, err)
	}
	return &t, nil
}

func (m *Memory) ListTables(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.tables {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) DeleteTables(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.tables {
		if strings.HasPrefix(k, prefix) {
			delete(m.tables, k)
		}
	}
	return nil
}
