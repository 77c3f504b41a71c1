// Package api contains the core building blocks shared by every statum
// engine: schematics, committed states, the engine and machine contracts,
// entry connectors, observers and the error taxonomy.
//
// Most users interact with the higher-level statum package, which re-exports
// selected types and provides the fluent schematic builder. The api package
// is intended for custom integrations such as alternative engines, stores or
// transports.
//
// # Schematics
//
// A Schematic is an immutable blueprint: a named set of states, exactly one
// of them initial, with the inputs each state accepts and the state each
// input leads to. A state may also list reentrant inputs, which commit a new
// state record without changing the state value, and an entry connector
// that performs a side effect whenever the state is entered.
//
// Schematics are only obtained through NewSchematic, which validates a
// Definition and reports every violation at once in a *ValidationError.
//
// # Machines
//
// A Machine is a persisted instance of a schematic. Machine.Send resolves
// the input against the current state, runs the entry connector of the
// target state and commits the result with an optimistic compare-and-swap
// on the state's commit tag. When the commit loses a race the schematic's
// RetryPolicy decides whether Send re-reads and tries again.
//
// # Errors
//
// Every error returned by an engine can be classified with KindOf. Kinds
// survive a trip over the remote protocol, so callers can match errors with
// errors.Is against the same sentinels locally and remotely.
package api
