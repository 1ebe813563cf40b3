// Package engine reconciles daemon state with operator intents.
//
// # Overview
//
// The Engine is the single authority coordinating all writes to the remote
// state model and all reads feeding the presentation layer. Two independent
// producers feed it: the transport's event stream (push, long-lived) and the
// operator's intent submissions (interactive). Both hand messages to one
// intake channel; Run drains it sequentially, so there is no fine-grained
// locking and no concurrent partial application anywhere.
//
// # Architecture
//
//	Stream pump ──events/snapshots──┐
//	                                ├──▶ intake ──▶ Run ──▶ model + queue
//	UI ──Submit(intent)─────────────┘                 │
//	                                                  ▼
//	UI ◀──Projection()◀── atomic pointer ◀── rebuildProjection
//
// After every message the engine rebuilds the projection from a deep model
// snapshot plus the action queue and publishes it through an atomic pointer.
// Readers always observe a fully reconciled snapshot, never a state mixing
// stale and fresh data for the same entity.
//
// # Optimistic Overlays
//
// Submit validates an intent, queues an Action, and dispatches the transport
// request. Until the action resolves, the projection overlays the optimistic
// post-action state on the confirmed baseline: an accepted device appears in
// the device list immediately, a deleted folder disappears immediately. The
// authoritative state underneath remains whatever the daemon last confirmed.
//
// Resolution rules:
//
//   - An action is Confirmed by the first event or snapshot whose applied
//     state satisfies its intent. A transport 2xx alone never confirms.
//   - A daemon rejection (4xx) or transport failure fails the action; the
//     overlay is dropped in the same rebuild, reverting the target to its
//     last confirmed state.
//   - A remote event newer than the action's submission version that
//     changes the action's target away from the shape observed at submit (a
//     fresh offer with different details, a config save reworking a folder
//     queued for delete) supersedes the action: last sequence wins. An
//     identical re-announcement is not a change and leaves the action
//     queued.
//
// Because overlay presence is exactly "action is non-terminal", the
// revert-on-failure behavior is structural rather than a flag to keep in
// sync.
//
// # Conflicts
//
// At most one non-terminal action may target an identifier per kind class
// (accept, reject, modify, delete). A delete conflicts with every class on
// its target in both directions. Repeated deletes merge: the second submit
// returns the already-queued action's handle. Everything else returns
// ErrConflict synchronously at submission.
//
// # Resync
//
// When the model reports a sequence gap the engine raises the refreshing
// flag, signals ResyncRequests, and keeps every queued action. The stream
// pump answers with a fresh snapshot; queued actions are then re-validated
// against it: satisfied ones confirm, ones whose introduction vanished are
// failed as superseded, the rest stay queued.
//
// # Stall Advisory
//
// An action with no resolution within the stall window gets a Stalled badge
// in the projection. Purely advisory: the action's state is untouched and the
// eventual transport response is still reconciled normally.
package engine
