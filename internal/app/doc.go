// Package app wires the synctui pieces together: it loads configuration
// and preferences, builds the daemon client, starts the reconciliation
// engine and the stream pump, and runs the terminal UI until the
// context is cancelled.
//
// # Stream Pump
//
// The pump is the only component that talks to the daemon's event feed.
// Its loop is:
//
//	connect -> snapshot + stream-up -> long-poll events, forwarding each
//
// On a transport failure it reports the stream down and reconnects with
// exponential backoff (500ms doubling to 15s, reset on success). When
// the engine signals that it lost event continuity, the pump reconnects
// immediately and the fresh snapshot rebases the engine's state; a
// resync is not treated as an outage, so the UI never flashes the
// disconnected banner for it.
//
// The first event batch after a connect only advances the poll cursor.
// The daemon replays its buffered history on an initial poll, and those
// events predate the snapshot the engine was just handed.
package app
