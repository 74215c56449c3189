// Package id derives the 16-byte identities that address event streams.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Namespace anchors every deterministic root so that keys hashed by this
// service never collide with UUIDs derived elsewhere.
var Namespace = uuid.MustParse("6f1c6a1e-3b8e-4c52-9d8a-0d6a9b1f4e21")

// CorrelationNamespace anchors correlation roots apart from natural keys.
var CorrelationNamespace = uuid.NewSHA1(Namespace, []byte("correlation"))

// NewRoot returns a random root for aggregates assigned an identity at creation.
func NewRoot() (uuid.UUID, error) {
	root, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate root: %w", err)
	}
	return root, nil
}

// RootFromKey derives a deterministic root from a domain's natural key.
func RootFromKey(domain, key string) uuid.UUID {
	return uuid.NewSHA1(Namespace, []byte(strings.TrimSpace(domain)+":"+strings.TrimSpace(key)))
}

// CorrelationRoot derives the root of a process-manager stream from a
// correlation id. Managers with different names share the root but not the
// domain, so their streams stay distinct.
func CorrelationRoot(correlationID string) uuid.UUID {
	return uuid.NewSHA1(CorrelationNamespace, []byte(strings.TrimSpace(correlationID)))
}

// ParseRoot parses a textual root and rejects the nil UUID.
func ParseRoot(value string) (uuid.UUID, error) {
	root, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse root: %w", err)
	}
	if root == uuid.Nil {
		return uuid.Nil, fmt.Errorf("parse root: root must not be nil")
	}
	return root, nil
}
