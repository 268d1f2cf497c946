package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

type failingPayload struct{}

func (failingPayload) MarshalJSON() ([]byte, error) {
	return nil, errors.New("marshal failure")
}

func TestChangePayloadDefinedAndEmpty(t *testing.T) {
	var undefined ChangePayload
	if undefined.Defined() || !undefined.IsEmpty() || undefined.Raw() != nil {
		t.Fatalf("expected zero payload to be undefined and empty")
	}
	empty := NewChangePayload(nil)
	if !empty.Defined() || !empty.IsEmpty() {
		t.Fatalf("expected nil payload to be defined but empty")
	}
	raw, err := json.Marshal(undefined)
	if err != nil || string(raw) != "null" {
		t.Fatalf("expected null encoding, got %s (%v)", raw, err)
	}
}

func TestChangePayloadRawIsCloned(t *testing.T) {
	raw := json.RawMessage(`{"code":"A"}`)
	payload := NewChangePayload(raw)
	raw[2] = 'X'

	first := payload.Raw()
	first[2] = 'Y'
	if got := string(payload.Raw()); got != `{"code":"A"}` {
		t.Fatalf("expected stored payload to remain unchanged, got %s", got)
	}
}

func TestPayloadRoundTripsLocation(t *testing.T) {
	loc := Location{Code: "001", PathHierarchy: "A-1-001", PrisonID: "MDI", LocationType: LocationTypeCell}
	payload, err := PayloadOf(loc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, ok, err := DecodePayload[Location](payload)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}
	if decoded.Key() != "MDI-A-1-001" {
		t.Fatalf("unexpected key %s", decoded.Key())
	}
	if _, ok, _ := DecodePayload[Location](ChangePayload{}); ok {
		t.Fatalf("expected undefined payload to decode as absent")
	}
	if _, err := PayloadOf(failingPayload{}); err == nil {
		t.Fatalf("expected marshal error")
	}
}
