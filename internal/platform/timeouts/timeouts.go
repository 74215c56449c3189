// Package timeouts defines shared timeout constants used across the coordinator.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a coordinator peer.
const GRPCDial = 2 * time.Second

// Shutdown limits how long the gRPC server waits for in-flight calls during
// graceful shutdown before forcing a stop.
const Shutdown = 5 * time.Second

// TelemetryShutdown bounds the final span flush on process exit.
const TelemetryShutdown = 5 * time.Second

// OutboxPoll is the default interval between outbox relay scans.
const OutboxPoll = 250 * time.Millisecond
