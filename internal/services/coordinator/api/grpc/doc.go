// Package grpc contains the coordinator's gRPC surface.
//
//   - coordinator/: CommandService and EventQueryService with their wire
//     messages, descriptors, and typed clients
//   - interceptors/: unary interceptors shared by every service
package grpc
