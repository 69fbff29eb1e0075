package codec

import (
	"mime"
	"strings"
)

// Media types understood by ForContentType.
const (
	MediaJSON    = "application/json"
	MediaCBOR    = "application/cbor"
	MediaMsgpack = "application/msgpack"
)

// ForContentType picks a codec from a Content-Type header value. Unknown or
// empty types fall back to JSON, which is what the order service speaks.
// Protobuf bodies decode directly into generated message types; any other
// V is read from a google.protobuf.Struct.
func ForContentType[V any](contentType string) Codec[V] {
	switch mediaType(contentType) {
	case MediaCBOR:
		c, err := NewCBOR[V](false)
		if err != nil {
			return JSON[V]{}
		}
		return c
	case MediaMsgpack, "application/x-msgpack", "application/vnd.msgpack":
		return Msgpack[V]{}
	case MediaProtobuf, "application/protobuf", "application/vnd.google.protobuf":
		return protobufFor[V]()
	default:
		return JSON[V]{}
	}
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}
