// Package sqlite provides the durable event journal: hash-chained event
// pages, per-stream snapshots and a publication outbox, all in one SQLite
// database.
//
// Every append runs inside one transaction that checks the expected
// sequence, writes the pages with their integrity hashes, and enqueues an
// outbox row describing the committed delta. A relay drains the outbox and
// publishes deltas to the bus, so publication survives process restarts.
package sqlite
