package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const version byte = 1

var (
	ErrCorrupt  = errors.New("adsync: corrupt validator record")
	ErrTooLarge = errors.New("adsync: validator field too large")
	magic4      = [...]byte{'A', 'D', 'S', 'V'}
)

// Validator is a cached GET response kept for conditional revalidation.
type Validator struct {
	ETag        string
	ContentType string
	Body        []byte
}

// Encode frames v:
//
//	magic(4) | ver(1) | etagLen(u16 be) | etag | ctLen(u16 be) | ct | blen(u32 be) | body(blen)
func Encode(v Validator) ([]byte, error) {
	if len(v.ETag) == 0 || len(v.ETag) > 0xFFFF || len(v.ContentType) > 0xFFFF || uint64(len(v.Body)) > 0xFFFFFFFF {
		return nil, ErrTooLarge
	}
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 2 + len(v.ETag) + 2 + len(v.ContentType) + 4 + len(v.Body))

	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u2 [2]byte
	var u4 [4]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(v.ETag)))
	buf.Write(u2[:])
	buf.WriteString(v.ETag)

	binary.BigEndian.PutUint16(u2[:], uint16(len(v.ContentType)))
	buf.Write(u2[:])
	buf.WriteString(v.ContentType)

	binary.BigEndian.PutUint32(u4[:], uint32(len(v.Body)))
	buf.Write(u4[:])
	buf.Write(v.Body)
	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. Body aliases b.
func Decode(b []byte) (Validator, error) {
	const hdr = 4 + 1
	if len(b) < hdr || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Validator{}, ErrCorrupt
	}
	off := hdr

	etag, off, ok := readString(b, off)
	if !ok || etag == "" {
		return Validator{}, ErrCorrupt
	}
	ct, off, ok := readString(b, off)
	if !ok {
		return Validator{}, ErrCorrupt
	}

	if off+4 > len(b) {
		return Validator{}, ErrCorrupt
	}
	blen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if blen != len(b)-off { // trailing junk is corruption too
		return Validator{}, ErrCorrupt
	}
	return Validator{ETag: etag, ContentType: ct, Body: b[off:]}, nil
}

func readString(b []byte, off int) (string, int, bool) {
	if off+2 > len(b) {
		return "", off, false
	}
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if n > len(b)-off {
		return "", off, false
	}
	return string(b[off : off+n]), off + n, true
}
