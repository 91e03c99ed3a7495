package api

import (
	"sync"
	"testing"

	"github.com/kalambet/tunnelprefs/internal/kv"
	"github.com/kalambet/tunnelprefs/internal/prefs"
)

type countingCallback struct {
	mu       sync.Mutex
	restarts int
	sessions int
}

func (c *countingCallback) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarts++
}

func (c *countingCallback) RestartActiveSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions++
}

func (c *countingCallback) counts() (restarts, sessions int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts, c.sessions
}

func newTestPrefs(t *testing.T) (*prefs.Preferences, *kv.Store, *countingCallback) {
	t.Helper()
	store, err := kv.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p, err := prefs.New(store, nil)
	if err != nil {
		t.Fatalf("prefs.New: %v", err)
	}
	cb := &countingCallback{}
	p.RegisterCallback(cb)
	return p, store, cb
}
