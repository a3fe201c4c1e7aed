package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalRow converts a value to JSON TEXT for storage.
// HTML escaping is disabled so stored rows stay byte-stable across versions.
func marshalRow(what string, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalRow parses JSON TEXT into v.
func unmarshalRow(what, data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
