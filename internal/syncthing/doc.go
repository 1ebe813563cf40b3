// Package syncthing provides an HTTP client for the daemon's REST API and
// event feed.
//
// # Overview
//
// This package is the transport layer of synctui. It handles HTTP
// communication, JSON serialization, and type-safe representation of the
// daemon's configuration, connection status, pending introductions, and event
// feed. It contains no business logic: reconciliation lives in
// internal/engine, which consumes this package through the API interface.
//
// # Architecture
//
// The package is split into two files:
//
//   - client.go: HTTP client, authentication, request/response handling
//   - types.go: Data structures mirroring the daemon's REST schema
//
// # Authentication
//
// Every request carries the daemon's GUI API key in the X-API-KEY header.
// The key is read from synctui's config file (or the -api-key flag) and is
// the same value found under configuration/gui/apikey in the daemon's own
// config.
//
// # Client Usage
//
//	client, err := syncthing.NewClient("127.0.0.1:8384", apiKey)
//	if err != nil {
//		log.Fatalf("failed to create client: %v", err)
//	}
//
//	// Full state snapshot (config, connections, pending sets, local ID)
//	snap, err := client.Connect(ctx)
//
//	// Long-poll the event feed from a sequence cursor
//	events, err := client.FetchEvents(ctx, since)
//
// # Event Feed
//
// /rest/events is a long-poll endpoint: the daemon holds the request open
// until new events arrive or a server-side window elapses, then returns a
// (possibly empty) JSON array. Each event carries a sequence number that
// increases by exactly one per event on a given connection. Consumers track
// the last seen sequence and pass it as "since"; a gap between consecutive
// IDs means events were dropped and a full Connect resync is required. That
// gap detection is owned by internal/state, not this package.
//
// # Error Model
//
// Failures split into two kinds so callers can react differently:
//
//   - ConnectionError: the daemon is unreachable or answered 5xx. Recoverable
//     by reconnecting with backoff.
//   - MutationError: the daemon understood and refused a mutation (4xx). The
//     request must not be retried verbatim; the reason is user-facing.
//
// Read endpoints report plain wrapped errors; Connect folds them into a
// ConnectionError since a partial snapshot is useless.
package syncthing
