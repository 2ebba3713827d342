package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecode_AllBytes(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single zero", []byte{0x00}},
		{"all byte values", all},
		{"reversed", func() []byte {
			r := make([]byte, 256)
			for i := range r {
				r[i] = byte(255 - i)
			}
			return r
		}()},
		{"odd length", []byte{0x00, 0xFF, 0x10}},
		{"memory card sized", bytes.Repeat([]byte{0xA5, 0x5A, 0x00}, 131072/3+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.data))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.data))
			}
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	got, err := Decode("")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, s := range []string{"!!!", "abc", "AP8Q="} {
		if _, err := Decode(s); !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q): expected ErrMalformed, got %v", s, err)
		}
	}
}

func TestNewEnvelope_Wire(t *testing.T) {
	b, err := json.Marshal(NewEnvelope(TypeImportState, []byte{0x00, 0xFF, 0x10}))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"import-state","base64":"AP8Q"}` {
		t.Fatalf("unexpected wire form %s", b)
	}

	b, err = json.Marshal(Envelope{Type: TypeRequestMcr})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"request-mcr"}` {
		t.Fatalf("unexpected wire form %s", b)
	}
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    MessageType
		wantErr bool
	}{
		{"export with payload", `{"type":"export-mcr","base64":"AAE="}`, TypeExportMcr, false},
		{"request", `{"type":"request-state"}`, TypeRequestState, false},
		{"missing type", `{"base64":"AAE="}`, "", true},
		{"unknown type", `{"type":"reset"}`, "", true},
		{"not json", `export-mcr`, "", true},
		{"empty object", `{}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEnvelope([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Type != tt.want {
				t.Fatalf("type = %q, want %q", got.Type, tt.want)
			}
		})
	}
}

func TestMessageType_Classes(t *testing.T) {
	if !TypeRequestMcr.IsRequest() || TypeRequestMcr.CarriesPayload() {
		t.Fatal("request-mcr")
	}
	if TypeExportState.IsRequest() || !TypeExportState.CarriesPayload() {
		t.Fatal("export-state")
	}
	if MessageType("bogus").CarriesPayload() {
		t.Fatal("bogus")
	}
}
