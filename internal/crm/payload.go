package crm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/voicecrm/internal/storage"
)

var ErrInvalidPayload = errors.New("invalid payload")

// OptionalString distinguishes a key that was absent from one sent as null.
type OptionalString struct {
	Present bool
	Value   *string
}

// NonEmpty reports whether the key carried a non-empty string.
func (o OptionalString) NonEmpty() bool {
	return o.Present && o.Value != nil && *o.Value != ""
}

type CustomerSection struct {
	FullName     OptionalString
	CustomerName OptionalString
	Phone        OptionalString
	Address      OptionalString
	City         OptionalString
	Locality     OptionalString
}

type InteractionSection struct {
	Summary OptionalString
}

// RecordPayload is the body of a history create or update request. Besides the
// parsed fields it keeps the sections and the whole body as sent, because both
// end up in raw_json.
type RecordPayload struct {
	Customer    CustomerSection
	Interaction InteractionSection
	Transcript  OptionalString
	Input       OptionalString

	rawCustomer    json.RawMessage
	rawInteraction json.RawMessage
	raw            json.RawMessage
}

// ParsePayload decodes a record payload. Every failure wraps ErrInvalidPayload.
func ParsePayload(data []byte) (RecordPayload, error) {
	var p RecordPayload
	if err := json.Unmarshal(data, &p); err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			return RecordPayload{}, err
		}
		return RecordPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}

func (p *RecordPayload) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return fmt.Errorf("%w: body must be a JSON object", ErrInvalidPayload)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	*p = RecordPayload{raw: compact.Bytes()}

	var err error
	if p.rawCustomer, err = section(fields, "customer"); err != nil {
		return err
	}
	if p.rawInteraction, err = section(fields, "interaction"); err != nil {
		return err
	}

	customer, err := sectionFields(p.rawCustomer)
	if err != nil {
		return err
	}
	targets := []struct {
		key string
		dst *OptionalString
	}{
		{"full_name", &p.Customer.FullName},
		{"customer_name", &p.Customer.CustomerName},
		{"phone", &p.Customer.Phone},
		{"address", &p.Customer.Address},
		{"city", &p.Customer.City},
		{"locality", &p.Customer.Locality},
	}
	for _, t := range targets {
		if *t.dst, err = optional(customer, t.key); err != nil {
			return fmt.Errorf("customer.%s: %w", t.key, err)
		}
	}

	interaction, err := sectionFields(p.rawInteraction)
	if err != nil {
		return err
	}
	if p.Interaction.Summary, err = optional(interaction, "summary"); err != nil {
		return fmt.Errorf("interaction.summary: %w", err)
	}

	if p.Transcript, err = optional(fields, "transcript"); err != nil {
		return fmt.Errorf("transcript: %w", err)
	}
	if p.Input, err = optional(fields, "input"); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	return nil
}

// Raw returns the whole payload as sent, compacted.
func (p RecordPayload) Raw() string {
	return string(p.raw)
}

// ExtractedJSON returns {"customer": ..., "interaction": ...} with each section
// as sent, or {} when a section was absent or null.
func (p RecordPayload) ExtractedJSON() (string, error) {
	b, err := json.Marshal(struct {
		Customer    json.RawMessage `json:"customer"`
		Interaction json.RawMessage `json:"interaction"`
	}{p.rawCustomer, p.rawInteraction})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NewInteraction builds the record stored by a create request.
func NewInteraction(p RecordPayload) (storage.Interaction, error) {
	rawJSON, err := p.ExtractedJSON()
	if err != nil {
		return storage.Interaction{}, err
	}

	transcript := p.Transcript.Value
	if !p.Transcript.Present {
		empty := ""
		transcript = &empty
	}

	name := p.Customer.CustomerName.Value
	if p.Customer.FullName.NonEmpty() {
		name = p.Customer.FullName.Value
	}

	return storage.Interaction{
		Transcript:   transcript,
		CustomerName: name,
		Phone:        p.Customer.Phone.Value,
		Address:      p.Customer.Address.Value,
		City:         p.Customer.City.Value,
		Locality:     p.Customer.Locality.Value,
		Summary:      p.Interaction.Summary.Value,
		RawJSON:      &rawJSON,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// ApplyUpdate merges an update payload into rec. Present keys win, including
// explicit nulls, except for the customer name which only changes to a
// non-empty value. raw_json is replaced by the payload itself.
func ApplyUpdate(rec *storage.Interaction, p RecordPayload) {
	switch {
	case p.Customer.FullName.NonEmpty():
		rec.CustomerName = p.Customer.FullName.Value
	case p.Customer.CustomerName.NonEmpty():
		rec.CustomerName = p.Customer.CustomerName.Value
	}

	p.Customer.Phone.applyTo(&rec.Phone)
	p.Customer.Address.applyTo(&rec.Address)
	p.Customer.City.applyTo(&rec.City)
	p.Customer.Locality.applyTo(&rec.Locality)
	p.Interaction.Summary.applyTo(&rec.Summary)

	if p.Transcript.Present {
		rec.Transcript = p.Transcript.Value
	} else if p.Input.Present {
		rec.Transcript = p.Input.Value
	}

	raw := p.Raw()
	rec.RawJSON = &raw
}

func (o OptionalString) applyTo(dst **string) {
	if o.Present {
		*dst = o.Value
	}
}

// section returns the raw value of a nested object, or {} when it is absent
// or null.
func section(fields map[string]json.RawMessage, key string) (json.RawMessage, error) {
	raw, ok := fields[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return json.RawMessage(`{}`), nil
	}
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidPayload, key)
	}
	return raw, nil
}

func sectionFields(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return fields, nil
}

// optional reads a scalar field. Strings are unquoted and numbers or booleans
// keep their literal text; objects and arrays are rejected.
func optional(fields map[string]json.RawMessage, key string) (OptionalString, error) {
	raw, ok := fields[key]
	if !ok {
		return OptionalString{}, nil
	}
	raw = bytes.TrimSpace(raw)
	switch {
	case string(raw) == "null":
		return OptionalString{Present: true}, nil
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return OptionalString{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return OptionalString{Present: true, Value: &s}, nil
	case len(raw) > 0 && (raw[0] == '{' || raw[0] == '['):
		return OptionalString{}, fmt.Errorf("%w: expected a string", ErrInvalidPayload)
	default:
		s := string(raw)
		return OptionalString{Present: true, Value: &s}, nil
	}
}
