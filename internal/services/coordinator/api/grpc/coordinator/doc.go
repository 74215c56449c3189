// Package coordinator exposes the command and query sides of the coordinator
// over gRPC.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// "json" content subtype, so the standard health service keeps its protobuf
// codec on the same server:
//   - CommandService -> Handle commits a command book; DryRun evaluates one
//     against current or historical state without writing
//   - EventQueryService -> GetEventBook reads a stream's history with an
//     optional as-of bound and filter; GetProcessState reads a process
//     manager's stream for one correlation id
package coordinator
