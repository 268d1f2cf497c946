package domain

import (
	"encoding/json"
	"fmt"
)

// ChangePayload carries the JSON image of an entity on one side of a Change.
// An undefined payload means "no image", e.g. the Before side of a create.
type ChangePayload struct {
	defined bool
	raw     json.RawMessage
}

// NewChangePayload wraps raw JSON, cloning the bytes.
func NewChangePayload(raw json.RawMessage) ChangePayload {
	payload := ChangePayload{defined: true}
	if raw != nil {
		payload.raw = cloneRaw(raw)
	}
	return payload
}

// PayloadOf marshals value into a ChangePayload.
func PayloadOf[T any](value T) (ChangePayload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return ChangePayload{}, err
	}
	return NewChangePayload(raw), nil
}

// MustPayloadOf is PayloadOf for entity types whose encoding cannot fail.
func MustPayloadOf[T any](value T) ChangePayload {
	payload, err := PayloadOf(value)
	if err != nil {
		panic(fmt.Sprintf("domain: encode change payload: %v", err))
	}
	return payload
}

// DecodePayload unmarshals the payload into T. The zero value and false are
// returned for undefined or empty payloads.
func DecodePayload[T any](p ChangePayload) (T, bool, error) {
	var out T
	if p.IsEmpty() {
		return out, false, nil
	}
	if err := json.Unmarshal(p.raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func (p ChangePayload) Defined() bool { return p.defined }

func (p ChangePayload) IsEmpty() bool {
	return !p.defined || len(p.raw) == 0
}

// Raw returns a copy of the payload bytes, or nil when empty.
func (p ChangePayload) Raw() json.RawMessage {
	if p.IsEmpty() {
		return nil
	}
	return cloneRaw(p.raw)
}

// MarshalJSON renders the wrapped image inline, or null when undefined.
func (p ChangePayload) MarshalJSON() ([]byte, error) {
	if p.IsEmpty() {
		return []byte("null"), nil
	}
	return cloneRaw(p.raw), nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(raw))
	copy(cloned, raw)
	return cloned
}
