package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/evented/internal/services/coordinator/domain/event"
)

type pageEnvelope struct {
	Domain    string          `json:"domain"`
	Root      string          `json:"root"`
	Sequence  uint64          `json:"sequence"`
	Type      string          `json:"type"`
	CreatedAt int64           `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

type chainEnvelope struct {
	PrevHash  string `json:"prev_hash"`
	EventHash string `json:"event_hash"`
}

// PageHash computes the content hash of a page in its stream.
func PageHash(cover event.Cover, page event.EventPage) (string, error) {
	body := page.Payload.Body
	if len(body) == 0 {
		body = json.RawMessage("null")
	}
	data, err := json.Marshal(pageEnvelope{
		Domain:    cover.Domain,
		Root:      cover.Root.String(),
		Sequence:  page.Sequence,
		Type:      page.Payload.Type,
		CreatedAt: page.CreatedAt.UTC().UnixMilli(),
		Payload:   body,
	})
	if err != nil {
		return "", fmt.Errorf("encode page envelope: %w", err)
	}
	return sha256Hex(data), nil
}

// ChainHash links a page hash to the chain hash of the page before it. The
// first page of a stream has an empty previous hash.
func ChainHash(eventHash, prevHash string) (string, error) {
	if eventHash == "" {
		return "", fmt.Errorf("event hash is required")
	}
	data, err := json.Marshal(chainEnvelope{PrevHash: prevHash, EventHash: eventHash})
	if err != nil {
		return "", fmt.Errorf("encode chain envelope: %w", err)
	}
	return sha256Hex(data), nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
