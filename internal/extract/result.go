package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedReply is returned when the model reply is not a JSON object, or
// carries an interaction that is not an object.
var ErrMalformedReply = errors.New("malformed extraction reply")

// Result is the model's reply object as it was returned. The prompt asks for
// a customer section (full_name, phone, address, city, locality) and an
// interaction section (summary, created_at); any other keys the model adds are
// kept and travel with the record.
type Result map[string]any

// decodeResult parses a reply. Numbers keep their literal text.
func decodeResult(data []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parsing extraction reply: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("parsing extraction reply: trailing data after the JSON object")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: reply is not a JSON object", ErrMalformedReply)
	}
	return Result(obj), nil
}

// section returns the named top-level object, or nil when it is absent or not
// an object.
func (r Result) section(name string) map[string]any {
	obj, _ := r[name].(map[string]any)
	return obj
}

// Field returns section.key as text. Strings come back as is, numbers and
// booleans in their literal form, nested values as compact JSON. ok is false
// when the section or the key is missing or null.
func (r Result) Field(section, key string) (string, bool) {
	v, present := r.section(section)[key]
	if !present || v == nil {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// HasName reports whether a non-empty customer.full_name was extracted.
func (r Result) HasName() bool {
	name, _ := r.Field("customer", "full_name")
	return name != ""
}

// CreatedAt returns interaction.created_at.
func (r Result) CreatedAt() string {
	s, _ := r.Field("interaction", "created_at")
	return s
}

// fillCreatedAt makes sure r has an interaction object with a non-empty
// created_at, using now when it does not.
func (r Result) fillCreatedAt(now string) error {
	if isFalsy(r["interaction"]) {
		r["interaction"] = map[string]any{}
	}
	interaction, ok := r["interaction"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: interaction is not a JSON object", ErrMalformedReply)
	}
	if isFalsy(interaction["created_at"]) {
		interaction["created_at"] = now
	}
	return nil
}

// isFalsy matches the values a model commonly emits for "nothing here".
func isFalsy(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	}
	return false
}
