package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/evented/internal/platform/errors"
)

// Payload is a tagged union: a stable type identifier plus a JSON body.
type Payload struct {
	Type string
	Body json.RawMessage
}

// NewPayload marshals v under the given type identifier.
func NewPayload(typ string, v any) (Payload, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return Payload{}, fmt.Errorf("payload type is required")
	}
	body, err := json.Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Payload{Type: typ, Body: body}, nil
}

// MustPayload is NewPayload for static values known to marshal.
func MustPayload(typ string, v any) Payload {
	p, err := NewPayload(typ, v)
	if err != nil {
		panic(err)
	}
	return p
}

// Empty reports whether the payload carries no type.
func (p Payload) Empty() bool {
	return strings.TrimSpace(p.Type) == ""
}

// Equal compares type and body bytes.
func (p Payload) Equal(other Payload) bool {
	return p.Type == other.Type && bytes.Equal(p.Body, other.Body)
}

// Clone deep-copies the body.
func (p Payload) Clone() Payload {
	if p.Body != nil {
		p.Body = append(json.RawMessage(nil), p.Body...)
	}
	return p
}

// Decode unmarshals the payload body into P. An empty body decodes to the
// zero value.
func Decode[P any](p Payload) (P, error) {
	var out P
	if len(bytes.TrimSpace(p.Body)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(p.Body, &out); err != nil {
		return out, apperrors.Wrap(apperrors.KindInvalidArgument, apperrors.CodePayloadDecodeFailed,
			fmt.Sprintf("decode %s payload", p.Type), err)
	}
	return out, nil
}
