package lock

import (
	"context"
	"sync"
)

// MemoryManager serializes subjects within a single process. Used by tests
// and single-node deployments where Redis is not configured.
type MemoryManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{locks: make(map[string]*sync.Mutex)}
}

func (m *MemoryManager) Lock(ctx context.Context, key string) error {
	lc, err := FromContext(ctx)
	if err != nil {
		return err
	}
	if lc.Holds(key) {
		return nil
	}

	m.mu.Lock()
	keyLock, ok := m.locks[key]
	if !ok {
		keyLock = &sync.Mutex{}
		m.locks[key] = keyLock
	}
	m.mu.Unlock()

	keyLock.Lock()
	lc.register(key, func(context.Context) error {
		keyLock.Unlock()
		return nil
	})
	return nil
}
