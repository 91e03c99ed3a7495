package prefs

// Store is the key-value storage the preferences are persisted in.
// Implemented by kv.Store.
//
// Getters must not fail: a missing key or a read error yields def.
type Store interface {
	GetBool(key string, def bool) bool
	GetString(key, def string) string
	GetStringSet(key string, def []string) []string
	PutBool(key string, v bool) error
	PutString(key, v string) error
	PutStringSet(key string, v []string) error
	// ImportEntries copies entries that are not already present and
	// returns how many were written.
	ImportEntries(entries map[string]any) (int, error)
}

// LegacySource enumerates a pre-existing preferences store. Implemented by
// legacy.File and legacy.Map.
type LegacySource interface {
	Entries() (map[string]any, error)
}

// Callback receives the application-level reactions to setting changes.
type Callback interface {
	// Restart reinitializes the whole tunnel stack.
	Restart()
	// RestartActiveSessions restarts only the tunnels currently up.
	RestartActiveSessions()
}
