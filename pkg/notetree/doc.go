// Package notetree provides the core application logic for a composable
// document server: pages containing trees of content blocks with attached
// media assets, mutated through single-record endpoints or atomic batches
// and fanned out to connected viewers over WebSockets.
//
// # Getting Started
//
// The application provides a command-line interface for running the server
// and managing schema migrations. For detailed usage information, see
// [github.com/notetree/notetree/pkg/notetree.Main].
//
// For API endpoint documentation and server configuration, see
// [github.com/notetree/notetree/pkg/notetree.App.Router].
//
// # Basic Usage
//
//	# Run with the in-memory store
//	./bin/notetree run
//
//	# Run against PostgreSQL
//	./bin/notetree -store postgres run
//
//	# Create the PostgreSQL schema
//	./bin/notetree -store postgres migrate
//
//	# Require a bearer token for mutations
//	./bin/notetree -auth-token secret run
//
//	# Start in read-only (maintenance) mode
//	./bin/notetree -read-only run
package notetree
