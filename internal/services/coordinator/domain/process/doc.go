// Package process runs stateful two-phase reactions keyed by correlation id.
//
// A process manager owns an event-sourced stream addressed by its name and
// the trigger's correlation id. Every trigger for the same correlation id
// appends to that stream through the coordinator's compare-and-append path,
// so concurrent triggers are totally ordered and exactly one of them observes
// the state in which the final action becomes due. A lost append reloads the
// stream and repeats Prepare and Handle, up to a configured bound.
//
// Triggers without a correlation id are skipped: no stream can be derived
// for them.
package process
