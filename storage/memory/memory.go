package memory

import (
	"sync"

	"github.com/fw-platform/wish-console/storage"
)

var _ storage.Storage = (*Memory)(nil)

// Memory is a process-local scope. Its contents disappear with the process.
type Memory struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *Memory {
	return &Memory{
		values: make(map[string]string),
	}
}

func (m *Memory) Get(key string) (string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.values[key] = value
}

func (m *Memory) Remove(key string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.values, key)
}

// Len returns the number of stored keys
func (m *Memory) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return len(m.values)
}
