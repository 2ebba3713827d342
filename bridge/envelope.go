package bridge

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType tags an Envelope exchanged with the emulator.
type MessageType string

const (
	TypeRequestMcr   MessageType = "request-mcr"
	TypeExportMcr    MessageType = "export-mcr"
	TypeRequestState MessageType = "request-state"
	TypeExportState  MessageType = "export-state"
	TypeImportMcr    MessageType = "import-mcr"
	TypeImportState  MessageType = "import-state"
)

var ErrMalformed = errors.New("bridge: malformed message")

func (t MessageType) Valid() bool {
	switch t {
	case TypeRequestMcr, TypeExportMcr, TypeRequestState, TypeExportState, TypeImportMcr, TypeImportState:
		return true
	}
	return false
}

// IsRequest is true for the payload-less request-* messages.
func (t MessageType) IsRequest() bool {
	return t == TypeRequestMcr || t == TypeRequestState
}

// CarriesPayload is true for export-* and import-* messages.
func (t MessageType) CarriesPayload() bool {
	return t.Valid() && !t.IsRequest()
}

// Envelope is the unit exchanged with an embedded target. The payload travels
// under the "base64" key, which is what the emulator builds speaking this
// protocol expect.
type Envelope struct {
	Type    MessageType `json:"type"`
	Payload *string     `json:"base64,omitempty"`
}

// NewEnvelope builds an envelope carrying the encoded payload. A nil payload
// produces an envelope without a payload field.
func NewEnvelope(t MessageType, payload []byte) Envelope {
	e := Envelope{Type: t}
	if payload != nil {
		s := Encode(payload)
		e.Payload = &s
	}
	return e
}

// Data decodes the envelope payload.
func (e Envelope) Data() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("%w: %s without payload", ErrMalformed, e.Type)
	}
	return Decode(*e.Payload)
}

// Encode converts an opaque payload into its transport text.
func Encode(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// Decode is the inverse of Encode. Callers should only decode text produced
// by Encode; anything else is reported as ErrMalformed.
func Decode(text string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b, nil
}

// ParseEnvelope decodes a JSON envelope. Envelopes with a missing or unknown
// type are rejected with ErrMalformed.
func ParseEnvelope(p []byte) (e Envelope, err error) {
	err = json.Unmarshal(p, &e)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformed, err)
		return
	}
	if e.Type == "" {
		err = fmt.Errorf("%w: missing type", ErrMalformed)
		return
	}
	if !e.Type.Valid() {
		err = fmt.Errorf("%w: unknown type %q", ErrMalformed, e.Type)
		return
	}
	return
}
