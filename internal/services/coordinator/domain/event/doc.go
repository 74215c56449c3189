// Package event defines the value types that describe committed history:
// covers that address a stream, pages that hold one event each, and books that
// carry a contiguous run of pages plus an optional snapshot.
//
// Books are values. Components exchange them by copy and never hold a mutable
// reference to another component's book.
package event
