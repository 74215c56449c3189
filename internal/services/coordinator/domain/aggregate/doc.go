// Package aggregate turns command books into committed events.
//
// A Definition binds a domain's rebuild functions and typed command handlers.
// A Router holds the definitions the process serves. The Evaluator performs
// the pure part of command handling (validate, rebuild, gate on the expected
// sequence, decide, stamp pages) and the Coordinator adds persistence,
// snapshots, publication, and synchronous dispatch around it.
//
// The Coordinator never retries. A stale expected sequence surfaces as a
// FAILED_PRECONDITION sequence conflict for the caller to resolve by
// re-reading the stream.
package aggregate
