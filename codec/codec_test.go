package codec

import (
	"fmt"
	"strings"
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

type order struct {
	ID     string `json:"_id"`
	Status string `json:"orderStatus"`
}

func TestForContentTypePicksCodec(t *testing.T) {
	cases := []struct {
		ct   string
		want any
	}{
		{"", JSON[order]{}},
		{"application/json; charset=utf-8", JSON[order]{}},
		{"application/cbor", CBOR[order]{}},
		{"application/x-msgpack", Msgpack[order]{}},
		{"application/x-protobuf", ProtoStruct[order]{}},
		{"text/html", JSON[order]{}},
	}
	for _, tc := range cases {
		got := ForContentType[order](tc.ct)
		if fmt.Sprintf("%T", got) != fmt.Sprintf("%T", tc.want) {
			t.Errorf("ForContentType(%q) = %T, want %T", tc.ct, got, tc.want)
		}
	}

	if _, ok := ForContentType[*structpb.Struct](MediaProtobuf).(protoMessage[*structpb.Struct]); !ok {
		t.Error("message types should decode directly")
	}
}

func TestCodecsHonourJSONTags(t *testing.T) {
	want := order{ID: "42", Status: "processing"}

	for _, ct := range []string{MediaJSON, MediaCBOR, MediaMsgpack, MediaProtobuf} {
		t.Run(ct, func(t *testing.T) {
			c := ForContentType[order](ct)
			b, err := c.Encode(want)
			if err != nil {
				t.Fatal(err)
			}

			// decode through a map to prove the wire names are the json tags
			m, err := ForContentType[map[string]any](ct).Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if m["_id"] != "42" {
				t.Fatalf("_id = %v, want 42 (map=%v)", m["_id"], m)
			}

			got, err := c.Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Fatalf("got %+v, want %+v", got, want)
			}
		})
	}
}

func TestCBORRejectsDuplicateKeys(t *testing.T) {
	c, err := NewCBOR[map[string]string](false)
	if err != nil {
		t.Fatal(err)
	}

	// {"a": "x", "a": "y"}
	dup := []byte{0xa2, 0x61, 'a', 0x61, 'x', 0x61, 'a', 0x61, 'y'}
	if _, err := c.Decode(dup); err == nil {
		t.Fatal("duplicate keys accepted")
	}
}

func TestLimitRejectsOversizedPayloads(t *testing.T) {
	c := Limit[order]{Inner: JSON[order]{}, MaxDecode: 8}

	_, err := c.Decode([]byte(`{"_id":"a-very-long-identifier"}`))
	if err == nil || !strings.Contains(err.Error(), "payload too large") {
		t.Fatalf("err = %v, want payload too large", err)
	}

	unlimited := Limit[order]{Inner: JSON[order]{}}
	got, err := unlimited.Decode([]byte(`{"_id":"a-very-long-identifier"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "a-very-long-identifier" {
		t.Fatalf("ID = %q", got.ID)
	}
}

func TestProtobufDecodesMessages(t *testing.T) {
	in, err := structpb.NewStruct(map[string]any{"_id": "42", "orderStatus": "completed"})
	if err != nil {
		t.Fatal(err)
	}

	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	b, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.GetFields()["orderStatus"].GetStringValue(); got != "completed" {
		t.Fatalf("orderStatus = %q", got)
	}

	// the content-type lookup builds the same message without a constructor
	looked, err := ForContentType[*structpb.Struct](MediaProtobuf).Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := looked.GetFields()["_id"].GetStringValue(); got != "42" {
		t.Fatalf("_id = %q", got)
	}
}

func TestProtoStructRejectsNonObjects(t *testing.T) {
	if _, err := (ProtoStruct[[]string]{}).Encode([]string{"a"}); err == nil {
		t.Fatal("a list cannot travel as a Struct")
	}
	if _, err := (ProtoStruct[order]{}).Decode([]byte{0xff}); err == nil {
		t.Fatal("garbage decoded")
	}
}
