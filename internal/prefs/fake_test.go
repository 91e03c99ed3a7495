package prefs

import (
	"errors"
	"sync"
)

// --- Fake store ---

type fakeStore struct {
	mu   sync.Mutex
	data map[string]any

	gets      int
	puts      int
	imports   int
	putErr    error
	importErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]any)}
}

func (f *fakeStore) GetBool(key string, def bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if v, ok := f.data[key].(bool); ok {
		return v
	}
	return def
}

func (f *fakeStore) GetString(key, def string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if v, ok := f.data[key].(string); ok {
		return v
	}
	return def
}

func (f *fakeStore) GetStringSet(key string, def []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if v, ok := f.data[key].([]string); ok {
		return append([]string(nil), v...)
	}
	return def
}

func (f *fakeStore) put(key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.data[key] = v
	return nil
}

func (f *fakeStore) PutBool(key string, v bool) error { return f.put(key, v) }
func (f *fakeStore) PutString(key, v string) error    { return f.put(key, v) }

func (f *fakeStore) PutStringSet(key string, v []string) error {
	return f.put(key, append([]string(nil), v...))
}

func (f *fakeStore) ImportEntries(entries map[string]any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.importErr != nil {
		return 0, f.importErr
	}
	n := 0
	for k, v := range entries {
		if _, ok := f.data[k]; ok {
			continue
		}
		f.data[k] = v
		f.imports++
		n++
	}
	return n, nil
}

func (f *fakeStore) counts() (gets, puts, imports int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.puts, f.imports
}

// setRaw changes a key behind the preferences' back.
func (f *fakeStore) setRaw(key string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = v
}

// --- Fake legacy source ---

type fakeLegacy struct {
	entries map[string]any
	err     error
	calls   int
}

func (l *fakeLegacy) Entries() (map[string]any, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.entries, nil
}

var errLegacyCorrupt = errors.New("legacy corrupt")

// --- Recording callback ---

type recordingCallback struct {
	mu              sync.Mutex
	restarts        int
	sessionRestarts int
}

func (c *recordingCallback) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restarts++
}

func (c *recordingCallback) RestartActiveSessions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionRestarts++
}

func (c *recordingCallback) counts() (restarts, sessionRestarts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts, c.sessionRestarts
}
