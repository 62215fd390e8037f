// Package registry persists the set of paired lights.
//
// The registry is a single YAML collection keyed by device ID, stored under
// the user's config directory (e.g. ~/.config/lumen/devices.yaml). Writes
// are atomic (temporary file + rename) and serialized with a mutex.
//
// # Merge semantics
//
// Two different components deliberately write different fields of the same
// record: the firmware-update monitor owns the ota_in_progress flag while
// the connectivity probe owns ip, firmware metadata and the last-connected
// timestamp. Both must use Merge, which applies a partial update on top of
// the current record, so neither overwrites fields the other maintains:
//
//	store.Merge("AB12", func(rec *registry.Record) {
//	    rec.OTAInProgress = false
//	})
//
// Concurrent writers for the same ID within one process are serialized;
// across processes the registry is last-writer-wins.
package registry
