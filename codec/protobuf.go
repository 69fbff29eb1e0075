package codec

import (
	"encoding/json"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"
)

// MediaProtobuf is the content type for Protobuf payloads.
const MediaProtobuf = "application/x-protobuf"

var (
	marshalProto   = proto.MarshalOptions{Deterministic: true}
	unmarshalProto = proto.UnmarshalOptions{DiscardUnknown: true}
)

// Protobuf decodes proto messages. Unknown fields are discarded so older
// clients keep working against a newer server schema.
type Protobuf[T proto.Message] struct {
	new func() T // e.g. func() *structpb.Struct { return &structpb.Struct{} }
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{new: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return marshalProto.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.new()
	err := unmarshalProto.Unmarshal(b, m)
	return m, err
}

// protoMessage is Protobuf for a V only known to be a message at run time.
type protoMessage[V any] struct {
	typ protoreflect.MessageType
}

func (c protoMessage[V]) Encode(v V) ([]byte, error) {
	return marshalProto.Marshal(any(v).(proto.Message))
}

func (c protoMessage[V]) Decode(b []byte) (V, error) {
	m := c.typ.New().Interface()
	if err := unmarshalProto.Unmarshal(b, m); err != nil {
		var zero V
		return zero, err
	}
	return m.(V), nil
}

// ProtoStruct carries a plain Go value as a google.protobuf.Struct. Field
// names are V's JSON names and numbers travel as doubles, so integers above
// 2^53 lose precision. V must encode to a JSON object.
type ProtoStruct[V any] struct{}

func (ProtoStruct[V]) Encode(v V) ([]byte, error) {
	j, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(j, s); err != nil {
		return nil, err
	}
	return marshalProto.Marshal(s)
}

func (ProtoStruct[V]) Decode(b []byte) (V, error) {
	var zero V
	s := &structpb.Struct{}
	if err := unmarshalProto.Unmarshal(b, s); err != nil {
		return zero, err
	}
	j, err := protojson.Marshal(s)
	if err != nil {
		return zero, err
	}
	return JSON[V]{}.Decode(j)
}

// protobufFor picks the message codec when V is a generated message type
// and the Struct bridge otherwise.
func protobufFor[V any]() Codec[V] {
	var zero V
	if m, ok := any(zero).(proto.Message); ok {
		return protoMessage[V]{typ: m.ProtoReflect().Type()}
	}
	return ProtoStruct[V]{}
}
