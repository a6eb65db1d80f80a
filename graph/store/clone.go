package store

import (
	"encoding/json"
	"fmt"
)

// cloneState deep-copies state with a JSON round trip.
//
// Unexported fields are not copied, and values that cannot be marshaled
// (channels, funcs) make the copy fail. State records used with the stores
// are plain data, so this is the same encoding the SQL stores persist.
func cloneState[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return copied, nil
}
