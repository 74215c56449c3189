package coordinator

import (
	"encoding/json"
	"time"
)

// Cover addresses a stream on the wire.
type Cover struct {
	Domain        string `json:"domain"`
	Root          string `json:"root"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Payload is a typed JSON body.
type Payload struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// CommandPage is one command of a book.
type CommandPage struct {
	ExpectedSequence uint64  `json:"expected_sequence"`
	Payload          Payload `json:"payload"`
	// SyncMode is NONE or SYNCHRONOUS.
	SyncMode string `json:"sync_mode,omitempty"`
}

// CommandBook addresses a stream with one or more commands.
type CommandBook struct {
	Cover Cover         `json:"cover"`
	Pages []CommandPage `json:"pages"`
}

// EventPage is one committed event.
type EventPage struct {
	Sequence  uint64    `json:"sequence"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is serialized state as of a sequence.
type Snapshot struct {
	State        []byte `json:"state"`
	AsOfSequence uint64 `json:"as_of_sequence"`
}

// EventBook is a run of pages for one stream.
type EventBook struct {
	Cover    Cover       `json:"cover"`
	Pages    []EventPage `json:"pages"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
}

// Error describes a failure reported inside a successful response.
type Error struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandleRequest carries a command book to commit.
type HandleRequest struct {
	Book CommandBook `json:"book"`
}

// HandleResponse returns the stream after the command. SyncError is set
// when the events committed but synchronous reactors failed.
type HandleResponse struct {
	Book      EventBook `json:"book"`
	SyncError *Error    `json:"sync_error,omitempty"`
}

// DryRunRequest evaluates a book without writing. At most one of the as-of
// fields may be set; neither means current state.
type DryRunRequest struct {
	Book         CommandBook `json:"book"`
	AsOfSequence *uint64     `json:"as_of_sequence,omitempty"`
	AsOfTime     *time.Time  `json:"as_of_time,omitempty"`
}

// DryRunResponse lists the pages the book would append.
type DryRunResponse struct {
	Pages []EventPage `json:"pages"`
}

// GetEventBookRequest reads a stream's history.
type GetEventBookRequest struct {
	Cover        Cover      `json:"cover"`
	AsOfSequence *uint64    `json:"as_of_sequence,omitempty"`
	AsOfTime     *time.Time `json:"as_of_time,omitempty"`
	// Filter is an AIP-160 expression over type, sequence, and created_at.
	Filter    string `json:"filter,omitempty"`
	PageSize  int32  `json:"page_size,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

// GetEventBookResponse holds the matching pages.
type GetEventBookResponse struct {
	Book          EventBook `json:"book"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

// GetProcessStateRequest names a process manager and correlation id.
type GetProcessStateRequest struct {
	Process       string `json:"process"`
	CorrelationID string `json:"correlation_id"`
}

// GetProcessStateResponse holds the manager's stream and rebuilt state.
type GetProcessStateResponse struct {
	Book  EventBook       `json:"book"`
	State json.RawMessage `json:"state"`
}
