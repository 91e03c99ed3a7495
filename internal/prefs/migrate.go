package prefs

import (
	"fmt"
	"log/slog"
)

// ImportFlagKey records that the legacy store has been imported. Once true it
// is never reset.
const ImportFlagKey = "import_success"

// importLegacy copies the legacy store into store the first time it runs
// against a given store. Keys already present in store win over legacy ones.
//
// An unreadable legacy store counts as empty and the flag is still set: a
// broken legacy file must not be retried on every start, at the cost of
// losing what it held. A readable store that fails to import is an error
// and leaves the flag unset.
func importLegacy(store Store, legacy LegacySource, log *slog.Logger) error {
	if store.GetBool(ImportFlagKey, false) {
		return nil
	}

	var entries map[string]any
	if legacy != nil {
		e, err := legacy.Entries()
		if err != nil {
			log.Warn("legacy preferences unreadable, skipping import", "error", err)
		} else {
			entries = e
		}
	}
	delete(entries, ImportFlagKey)

	if len(entries) > 0 {
		// The flag stays unset so the next start retries; the import is
		// a single transaction.
		n, err := store.ImportEntries(entries)
		if err != nil {
			return fmt.Errorf("importing legacy preferences: %w", err)
		}
		log.Info("imported legacy preferences", "imported", n, "skipped", len(entries)-n)
	}

	if err := store.PutBool(ImportFlagKey, true); err != nil {
		return fmt.Errorf("recording legacy import: %w", err)
	}
	return nil
}
