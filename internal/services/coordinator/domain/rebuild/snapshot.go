package rebuild

import (
	"encoding/json"
	"fmt"
)

// JSONSnapshot encodes state as JSON for snapshot storage.
type JSONSnapshot[S any] struct{}

// FromSnapshot decodes a JSON snapshot. It satisfies Funcs.FromSnapshot.
func (JSONSnapshot[S]) FromSnapshot(data []byte) (S, error) {
	var state S
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("decode snapshot: %w", err)
	}
	return state, nil
}

// Encode marshals state for a snapshot write.
func (JSONSnapshot[S]) Encode(state S) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}
