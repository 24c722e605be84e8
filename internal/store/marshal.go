package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/x3drouter/internal/engine"
	"github.com/roach88/x3drouter/internal/ir"
)

// marshalInput converts an external input to JSON TEXT for storage.
// Uses json.Encoder with HTML escaping disabled so stored text matches what
// a scenario file would contain.
func marshalInput(in engine.ExternalInput) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(in); err != nil {
		return "", fmt.Errorf("marshal input: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalInput parses JSON TEXT back to an external input. Numbers come
// back as float64, which ir.ValueFrom accepts for every numeric type.
func unmarshalInput(data string) (engine.ExternalInput, error) {
	var in engine.ExternalInput
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return engine.ExternalInput{}, fmt.Errorf("unmarshal input: %w", err)
	}
	return in, nil
}

// marshalValue converts a delivered field value to canonical JSON TEXT.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
