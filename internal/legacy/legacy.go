// Package legacy reads preferences written by releases that predate the
// SQLite store. It is consulted once, by the first-run import.
package legacy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// File is a flat JSON object of preference key to value, as written by the
// old file-based preferences backend.
type File struct {
	Path string
}

// DefaultPath returns the location older releases wrote preferences to.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "tunnelprefs", "shared_prefs.json")
}

// Entries returns every key in the file. A missing file is an empty store,
// not an error.
func (f File) Entries() (map[string]any, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading legacy preferences %s: %w", f.Path, err)
	}
	entries := make(map[string]any)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing legacy preferences %s: %w", f.Path, err)
	}
	return entries, nil
}

// Map is an in-memory legacy store.
type Map map[string]any

func (m Map) Entries() (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}
