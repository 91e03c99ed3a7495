package prefs

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kalambet/tunnelprefs/internal/kv"
	"github.com/kalambet/tunnelprefs/internal/legacy"
)

func TestMigrationImportsOnce(t *testing.T) {
	store := newFakeStore()
	src := &fakeLegacy{entries: map[string]any{
		"dark_theme":       true,
		"last_used_tunnel": "home",
	}}

	p, err := New(store, src)
	if err != nil {
		t.Fatalf("first New: %v", err)
	}
	if !p.UseDarkTheme.Get() || p.LastUsedTunnel.Get() != "home" {
		t.Errorf("legacy values not visible: dark=%v last=%q", p.UseDarkTheme.Get(), p.LastUsedTunnel.Get())
	}
	if !store.GetBool(ImportFlagKey, false) {
		t.Fatal("import flag not set after first run")
	}

	_, putsBefore, importsBefore := store.counts()
	if _, err := New(store, src); err != nil {
		t.Fatalf("second New: %v", err)
	}
	_, putsAfter, importsAfter := store.counts()

	if putsAfter != putsBefore || importsAfter != importsBefore {
		t.Errorf("second run wrote to the store: puts %d->%d imports %d->%d",
			putsBefore, putsAfter, importsBefore, importsAfter)
	}
	if src.calls != 1 {
		t.Errorf("legacy read %d times, want 1", src.calls)
	}
}

func TestMigrationNilLegacySetsFlag(t *testing.T) {
	store := newFakeStore()

	if _, err := New(store, nil); err != nil {
		t.Fatalf("New: %v", err)
	}
	if !store.GetBool(ImportFlagKey, false) {
		t.Error("import flag not set with no legacy store")
	}
	if _, _, imports := store.counts(); imports != 0 {
		t.Errorf("imports = %d, want 0", imports)
	}
}

func TestMigrationUnreadableLegacySetsFlag(t *testing.T) {
	store := newFakeStore()
	src := &fakeLegacy{err: errLegacyCorrupt}

	if _, err := New(store, src); err != nil {
		t.Fatalf("New: %v", err)
	}
	if !store.GetBool(ImportFlagKey, false) {
		t.Error("import flag not set after unreadable legacy store")
	}

	// Not retried on the next start.
	if _, err := New(store, src); err != nil {
		t.Fatalf("second New: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("legacy read %d times, want 1", src.calls)
	}
}

func TestMigrationFlagWriteFailure(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("read-only store")

	_, err := New(store, nil)
	if err == nil {
		t.Fatal("expected error when the import flag cannot be written")
	}
	if !errors.Is(err, store.putErr) {
		t.Errorf("error %v does not wrap the store error", err)
	}
}

func TestMigrationImportFailureRetried(t *testing.T) {
	store := newFakeStore()
	store.importErr = errors.New("database is locked")
	src := &fakeLegacy{entries: map[string]any{"dark_theme": true}}

	_, err := New(store, src)
	if !errors.Is(err, store.importErr) {
		t.Fatalf("New error = %v, want the import error", err)
	}
	if store.GetBool(ImportFlagKey, false) {
		t.Fatal("import flag set although the import failed")
	}

	store.importErr = nil
	p, err := New(store, src)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("legacy read %d times, want 2", src.calls)
	}
	if !p.UseDarkTheme.Get() {
		t.Error("legacy dark_theme not imported on retry")
	}
	if !store.GetBool(ImportFlagKey, false) {
		t.Error("import flag not set after successful retry")
	}
}

func TestMigrationLegacyFlagNotImported(t *testing.T) {
	store := newFakeStore()
	src := &fakeLegacy{entries: map[string]any{ImportFlagKey: false}}

	if _, err := New(store, src); err != nil {
		t.Fatalf("New: %v", err)
	}
	if !store.GetBool(ImportFlagKey, false) {
		t.Error("legacy copy of the import flag overrode the real one")
	}
}

// TestMigrationIntoSQLite runs the import against the real store, checking
// that values already in the new store win over legacy ones.
func TestMigrationIntoSQLite(t *testing.T) {
	store, err := kv.Open(":memory:")
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.PutString("global_exclusions", "com.app.kept"); err != nil {
		t.Fatalf("PutString: %v", err)
	}

	src := legacy.Map{
		"global_exclusions": "com.app.legacy",
		"fingerprint_auth":  true,
		"enabled_configs":   []any{"wg1", "wg0"},
	}
	p, err := New(store, src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := p.Exclusions.Get(); got != "com.app.kept" {
		t.Errorf("Exclusions = %q, want existing value to win", got)
	}
	if !p.FingerprintAuth.Get() {
		t.Error("FingerprintAuth not imported")
	}
	if got := p.RunningTunnels.Get(); !reflect.DeepEqual(got, []string{"wg0", "wg1"}) {
		t.Errorf("RunningTunnels = %v, want [wg0 wg1]", got)
	}
}
