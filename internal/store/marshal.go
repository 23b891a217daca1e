package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalSource converts a document to JSON TEXT for storage.
// Map keys are sorted by encoding/json, so equal documents store equal text.
func marshalSource(source map[string]any) (string, error) {
	if source == nil {
		return "{}", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(source); err != nil {
		return "", fmt.Errorf("marshal source: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// UnmarshalSource parses JSON TEXT to a document. Integral numbers decode
// to int64 to avoid float64 precision loss for values > 2^53; other numbers
// decode to float64.
func UnmarshalSource(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("unmarshal source: %w", err)
	}
	return normalize(obj).(map[string]any), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}
