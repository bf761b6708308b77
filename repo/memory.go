package repo

import (
	"sync"
)

// MemoryKV is an in-memory KV used by tests and by the daemon when it runs
// without a data dir.
type MemoryKV struct {
	mu     sync.Mutex
	tables map[Table]map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	tables := map[Table]map[string][]byte{}
	for _, table := range AllTables {
		tables[table] = map[string][]byte{}
	}
	return &MemoryKV{tables: tables}
}

func (m *MemoryKV) Get(table Table, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, found := m.tables[table][key]
	if !found {
		return nil, false, nil
	}
	result := make([]byte, len(value))
	copy(result, value)
	return result, true, nil
}

func (m *MemoryKV) Put(table Table, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	if m.tables[table] == nil {
		m.tables[table] = map[string][]byte{}
	}
	m.tables[table][key] = stored
	return nil
}

func (m *MemoryKV) List(table Table) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := map[string][]byte{}
	for k, v := range m.tables[table] {
		value := make([]byte, len(v))
		copy(value, v)
		result[k] = value
	}
	return result, nil
}

// Len reports the number of records in a table. Test helper.
func (m *MemoryKV) Len(table Table) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}
