// Package state holds the canonical in-memory mirror of daemon state.
//
// # Overview
//
// The Model is the single source of truth for what the daemon last confirmed:
// configured devices and folders, per-device connection status, and pending
// introductions (devices and folder offers not yet accepted). It is versioned
// by the daemon's event sequence number and mutated only by the
// reconciliation engine, which is its sole owner. The package has no
// goroutine safety of its own; serialization is the engine's job.
//
// # Sequencing
//
// Every daemon event carries a sequence number that increases by exactly one
// per event. ApplyEvent enforces contiguity:
//
//	ev.ID == Seq+1  → applied, Seq advances
//	anything else   → ErrResyncRequired, model untouched
//
// A gap means the daemon's event buffer wrapped past us and silent state
// corruption would follow; the only safe recovery is a full ApplySnapshot.
// Because a fresh snapshot does not say which event cursor it corresponds to,
// the first event applied after ApplySnapshot re-bases the cursor instead of
// being checked. Events are never applied partially: either the payload
// decodes and all its mutations land, or the model is left exactly as it was.
//
// # Merge Semantics
//
//   - DeviceConnected for an unknown ID creates the device; the daemon can
//     report a connection before the config change arrives.
//   - ConfigSaved replaces the configured sets wholesale but carries forward
//     live fields (connection state, sync status) for surviving entries, and
//     drops pending introductions that the new config satisfies.
//   - Pending introductions are keyed by offering identity (device ID, or
//     folder ID + offering device ID); a later offer for the same key
//     replaces the earlier one entirely.
//   - Status events (FolderSummary, StateChanged, FolderErrors) for unknown
//     folders advance the cursor and change nothing.
//
// # Snapshots
//
// Snapshot returns a View: a deep copy with entities sorted by
// case-insensitive display name. The engine builds projections from Views, so
// nothing downstream can observe or mutate the model mid-update.
package state
