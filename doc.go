// Package notetree is a composable document server and client toolkit.
//
// Documents are pages holding trees of content blocks, each block optionally
// carrying media assets. The server enforces the structural invariants of
// that model (same-page parentage, acyclic trees, single-owner media,
// cascading deletes) and exposes them over a REST API plus a WebSocket event
// stream that delivers every committed change, in commit order, to connected
// viewers.
//
// # Packages
//
//   - [github.com/notetree/notetree/pkg/models]: domain records and typed ids
//   - [github.com/notetree/notetree/pkg/store]: the storage interface, its
//     error taxonomy, and the in-memory and PostgreSQL implementations
//   - [github.com/notetree/notetree/pkg/batch]: atomic all-or-nothing
//     multi-operation mutations
//   - [github.com/notetree/notetree/pkg/events]: change events and the
//     fan-out broadcaster
//   - [github.com/notetree/notetree/pkg/overlay]: the client-side optimistic
//     staging session
//   - [github.com/notetree/notetree/pkg/client]: REST client, reconnecting
//     event viewer, and retry policies
//   - [github.com/notetree/notetree/pkg/notetree]: the application wiring,
//     HTTP handlers, and command-line entry point
//
// # Running
//
//	go run ./cmd/notetree run                    # in-memory store
//	go run ./cmd/notetree -store postgres migrate
//	go run ./cmd/notetree -store postgres run
package notetree
