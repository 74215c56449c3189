// Package server wires the coordinator runtime and serves it over gRPC.
//
// Startup builds, in order: the module registry and its aggregate router,
// the event store (in-memory, or SQLite with an HMAC keyring and outbox), the
// aggregate coordinator, the reactor dispatcher, and the in-memory bus. In
// SQLite mode committed deltas reach the bus through the outbox relay; in
// memory mode the coordinator publishes directly.
package server
