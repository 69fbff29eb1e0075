package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func mustEncode(t *testing.T, v Validator) []byte {
	t.Helper()
	b, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	cases := []Validator{
		{ETag: `"v1"`, ContentType: "application/json", Body: []byte(`{"data":[]}`)},
		{ETag: `W/"abc"`},
		{ETag: `"x"`, ContentType: "application/cbor", Body: []byte{0, 1, 2, 0xff}},
	}
	for _, tc := range cases {
		got, err := Decode(mustEncode(t, tc))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if got.ETag != tc.ETag || got.ContentType != tc.ContentType {
			t.Fatalf("header mismatch: got %+v want %+v", got, tc)
		}
		if !bytes.Equal(got.Body, tc.Body) {
			t.Fatalf("body mismatch: got %x want %x", got.Body, tc.Body)
		}
	}
}

func TestEncodeRejectsBadFields(t *testing.T) {
	if _, err := Encode(Validator{}); err != ErrTooLarge {
		t.Fatalf("empty etag: got %v", err)
	}
	if _, err := Encode(Validator{ETag: strings.Repeat("e", 0x10000)}); err != ErrTooLarge {
		t.Fatalf("long etag: got %v", err)
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	enc := mustEncode(t, Validator{ETag: `"v1"`, ContentType: "application/json", Body: []byte("abc")})

	bad := map[string][]byte{
		"short":     enc[:3],
		"magic":     append([]byte("XXXX"), enc[4:]...),
		"version":   append(append([]byte{}, enc[:4]...), append([]byte{9}, enc[5:]...)...),
		"truncated": enc[:len(enc)-1],
		"trailing":  append(append([]byte{}, enc...), 0xDE),
	}

	// etag length pointing past the end
	over := append([]byte{}, enc...)
	binary.BigEndian.PutUint16(over[5:7], 0xFFFF)
	bad["etag_len"] = over

	// empty etag
	empty := append([]byte{}, enc[:5]...)
	empty = append(empty, 0, 0, 0, 0, 0, 0, 0, 0)
	bad["empty_etag"] = empty

	for name, b := range bad {
		if _, err := Decode(b); err != ErrCorrupt {
			t.Fatalf("%s: want ErrCorrupt, got %v", name, err)
		}
	}
}
