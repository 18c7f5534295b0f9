package institutional

import (
	"sync"
)

// Registry holds one manager per (user, bot) pair so several configured bots
// can run in one process while sharing the in-flight lock table. Keyed by
// "user:bot".
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

// NewRegistry creates an empty manager registry.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager, 4)}
}

func registryKey(userID, botID string) string {
	return userID + ":" + botID
}

// Register stores (or replaces) the manager for a (user, bot) pair.
func (r *Registry) Register(userID, botID string, m *Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers[registryKey(userID, botID)] = m
}

// Get returns the manager for a (user, bot) pair.
func (r *Registry) Get(userID, botID string) (*Manager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[registryKey(userID, botID)]
	return m, ok
}

// Remove drops the manager for a (user, bot) pair.
func (r *Registry) Remove(userID, botID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, registryKey(userID, botID))
}

// All returns every registered manager. Order is unspecified.
func (r *Registry) All() []*Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	return out
}
