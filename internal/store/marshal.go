package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/cellc/internal/ir"
)

// marshalOptions converts run options to canonical JSON TEXT so that
// equal option sets are stored byte-identically.
func marshalOptions(opts map[string]any) (string, error) {
	if len(opts) == 0 {
		return "{}", nil
	}
	data, err := ir.MarshalCanonical(opts)
	if err != nil {
		return "", fmt.Errorf("marshal options: %w", err)
	}
	return string(data), nil
}

// unmarshalOptions parses options TEXT. Numbers come back as json.Number
// so integers round-trip exactly.
func unmarshalOptions(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return map[string]any{}, nil
	}
	var out map[string]any
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	return out, nil
}
