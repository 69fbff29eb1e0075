// Package codec decodes response bodies and push payloads. JSON is the
// service default; CBOR, Msgpack and Protobuf are negotiated by content
// type.
package codec

// Codec encodes/decodes values V to []byte.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
