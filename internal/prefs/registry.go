package prefs

import (
	"fmt"
	"slices"
	"sync"
)

// Registry maps storage keys to the invalidation action of the setting that
// owns them. Writers that change a key behind the preferences' back call
// Notify so the cached value is dropped and the side effect fires.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]func()
}

func newRegistry() *Registry {
	return &Registry{actions: make(map[string]func())}
}

// register panics on a duplicate key: the settings table is fixed at compile
// time, so a collision is a programming error.
func (r *Registry) register(key string, action func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.actions[key]; ok {
		panic(fmt.Sprintf("prefs: duplicate setting key %q", key))
	}
	r.actions[key] = action
}

// Notify runs the action registered for key and reports whether there was
// one. Unknown keys are ignored.
func (r *Registry) Notify(key string) bool {
	r.mu.RLock()
	action, ok := r.actions[key]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	action()
	return true
}

// Keys returns the registered storage keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.actions))
	for k := range r.actions {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	slices.Sort(keys)
	return keys
}
