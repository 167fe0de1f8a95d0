package cloudage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const messageField = "message"

// Envelope is the normalized view of one status payload.
type Envelope struct {
	Topic   string
	Payload []byte
	// Fields is the decoded top-level object.
	Fields map[string]any
	// Nested is set when "message" itself carried a JSON object.
	Nested map[string]any
	// Merged is Fields with Nested laid over it; nested keys win.
	Merged map[string]any
	// Tag is the plain "message" marker (e.g. KeepAlive) or the inner
	// message type of a nested object.
	Tag string
}

// Decode parses a raw status payload. A payload that is not a JSON object
// yields an ErrDecode-wrapped error, meaning there is nothing to act on.
func Decode(topic string, payload []byte) (Envelope, error) {
	env := Envelope{Topic: topic, Payload: payload}

	fields, err := decodeObject(payload)
	if err != nil {
		return env, fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}
	env.Fields = fields
	env.Merged = fields

	msg, ok := fields[messageField].(string)
	if !ok {
		return env, nil
	}
	if !strings.HasPrefix(msg, "{") {
		env.Tag = msg
		return env, nil
	}

	nested, err := decodeObject([]byte(msg))
	if err != nil {
		// not JSON after all, just a tag
		env.Tag = msg
		return env, nil
	}
	env.Nested = nested
	if inner, ok := nested[messageField].(string); ok {
		env.Tag = inner
	}

	merged := make(map[string]any, len(fields)+len(nested))
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range nested {
		merged[k] = v
	}
	env.Merged = merged
	return env, nil
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return out, nil
}
