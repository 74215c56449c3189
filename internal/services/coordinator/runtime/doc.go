// Package runtime connects committed events to the reactors that consume
// them. The Dispatcher runs sagas and process managers for each delta and
// submits the commands they produce; the Relay drains the durable outbox
// onto the bus.
package runtime
