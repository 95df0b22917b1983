package store

import (
	"maps"
	"sort"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]string),
	}
}

func (m *MemoryStore) Get(collection, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[collection]
	if !ok {
		return "", false, nil
	}
	v, ok := coll[key]
	return v, ok, nil
}

func (m *MemoryStore) Put(collection, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = make(map[string]string)
	}
	m.collections[collection][key] = value
	return nil
}

// PutBatch applies the batch to a copy of the collection and swaps it in,
// so a batch is never half visible.
func (m *MemoryStore) PutBatch(collection string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]string, len(m.collections[collection])+len(entries))
	maps.Copy(next, m.collections[collection])
	for _, e := range entries {
		next[e.Key] = e.Value
	}
	m.collections[collection] = next
	return nil
}

func (m *MemoryStore) Delete(collection, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return false, nil
	}
	if _, exists := coll[key]; !exists {
		return false, nil
	}
	delete(coll, key)
	return true, nil
}

func (m *MemoryStore) Contains(collection, key string) (bool, error) {
	_, ok, err := m.Get(collection, key)
	return ok, err
}

func (m *MemoryStore) Count(collection string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection]), nil
}

func (m *MemoryStore) Clear(collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

func (m *MemoryStore) Keys(collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.collections[collection]))
	for k := range m.collections[collection] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) ListCollections() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, values := range m.collections {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
