package ninepproto

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Shorthand for packing and unpacking numbers.
var (
	guint16 = binary.LittleEndian.Uint16
	guint32 = binary.LittleEndian.Uint32
	guint64 = binary.LittleEndian.Uint64

	buint16 = binary.LittleEndian.PutUint16
	buint32 = binary.LittleEndian.PutUint32
	buint64 = binary.LittleEndian.PutUint64
)

// Bit-packing functions. The caller is expected to check that the
// backing array has enough space for whatever it is writing; these
// functions extend their argument slice by the amount of data
// encoded.

func puint8(b []byte, v uint8) []byte {
	return append(b, v)
}

func puint16(b []byte, v uint16) []byte {
	n := len(b)
	b = b[:n+2]
	buint16(b[n:], v)
	return b
}

func puint32(b []byte, v ...uint32) []byte {
	for _, vv := range v {
		n := len(b)
		b = b[:n+4]
		buint32(b[n:], vv)
	}
	return b
}

func puint64(b []byte, v uint64) []byte {
	n := len(b)
	b = b[:n+8]
	buint64(b[n:], v)
	return b
}

func pbyte(b, p []byte) []byte {
	if len(p) > math.MaxUint16 {
		panic(errLongString)
	}
	b = puint16(b, uint16(len(p)))
	return append(b, p...)
}

func pqid(b []byte, qids ...Qid) []byte {
	for _, q := range qids {
		b = append(b, q[:QidLen]...)
	}
	return b
}

func pstring(b []byte, s ...string) []byte {
	for _, ss := range s {
		b = puint16(b, uint16(len(ss)))
		b = append(b, ss...)
	}
	return b
}

func pheader(b []byte, size uint32, mtype uint8, tag uint16, extra ...uint32) []byte {
	b = puint32(b, size)
	b = puint8(b, mtype)
	b = puint16(b, tag)
	b = puint32(b, extra...)
	return b
}

// Verify a string. Strings must be valid UTF8 sequences.
func verifyString(data []byte) error {
	if !utf8.Valid(data) {
		return errInvalidUTF8
	}
	return nil
}

// Verify the first variable-length field in data. If successful,
// returns the field along with the remaining data after it. If fill
// is true, the field is expected to fill data, minus padding bytes
// of trailing fixed-width fields.
func verifyField(data []byte, fill bool, padding int) ([]byte, []byte, error) {
	if len(data) < 2 {
		return nil, nil, errOverSize
	}
	size := int(guint16(data[:2]))
	if len(data) < 2+size {
		return nil, nil, errOverSize
	} else if fill && 2+size < len(data)-padding {
		return nil, nil, errUnderSize
	}
	return data[2 : 2+size], data[2+size:], nil
}
