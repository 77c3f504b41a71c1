// Package statum provides a small, embeddable finite state machine engine
// for Go.
//
// A statum machine is persisted. Every transition is committed to a store
// with an optimistic compare-and-swap, so many goroutines or processes can
// drive the same machine without a lock service. The same API is offered by
// a local engine and by a remote client that talks to a statum server.
//
// # Core Concepts
//
//  1. Schematic
//  2. StateEngine
//  3. Machine
//  4. Connector
//
// # Schematic
//
// A Schematic is the immutable blueprint of a machine: its states, the
// initial state, the inputs each state accepts and the conflict retry
// policy. Schematics are declared with the fluent builder:
//
//	s, err := statum.NewSchematic[string, string]("turnstile").
//	    WithState("locked", func(st *statum.StateBuilder[string, string]) {
//	        st.AsInitialState().WithReentrance("push").WithTransitionTo("unlocked", "coin")
//	    }).
//	    WithState("unlocked", func(st *statum.StateBuilder[string, string]) {
//	        st.WithTransitionTo("locked", "push")
//	    }).
//	    Build()
//
// or loaded from YAML with ParseSchematicYAML. Build reports every problem
// at once in a *api.ValidationError.
//
// # StateEngine
//
// A StateEngine creates, loads and deletes machines and stores named
// schematics. Engines exist for several backends:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite
//   - Postgres
//   - Redis
//   - MongoDB
//   - Remote (a statum server reached over HTTP)
//
// # Machine
//
// Machine.Send resolves an input against the current state, runs the
// target state's entry connector and commits the new state. When another
// writer commits first, the schematic's RetryPolicy decides whether Send
// re-reads and tries again or reports a concurrency conflict.
//
// # Connector
//
// A Connector performs the side effect attached to a state. Connectors are
// registered on the engine under a key and referenced from schematics by
// that key. A failing connector can be compensated by a failure input,
// which the engine sends in place of the original one.
//
// # Errors
//
// Every error carries a Kind (see KindOf). Kinds survive the remote
// transport, so callers can branch on them the same way for local and
// remote engines.
//
// # LocalServer
//
// LocalServer runs an in-memory engine behind a statum server on a local
// port. It is meant for development and for tests of remote clients.
//
// For runnable programs see the /examples directory.
package statum
