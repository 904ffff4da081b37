package ninepproto

import (
	"io"
	"strings"
	"testing"
)

// These inputs are derived from fuzzing sessions against earlier
// revisions of the parser. Feeding them to a Decoder must never
// crash, whatever else happens.

var malformed = []string{
	"F\x00\x00\x00}00>\x000000000000000000000000000000000000000000000000000000000000000",
	"G\x00\x00\x00}00>\x00000000000000000000000000000000000000000\x00\x00\x03\x00000\x05\x0000000\b\x000000000",
	"\x01\x00\x00\x00000",
	"\n\x00\x00\x00u000000",
	"\x13\x00\x00\x00\x64\xff\xff\x00\x20\x00\x00\xff\xff9P2000",
	"\x0b\x00\x00\x00\x6e\x01\x00\x01\x00\x00\x00",
	"\x3a\x00\x00\x00\x7d\x01\x00\x31\x00\x31\x00\x00\x00\x00\x00\x00\x00\x00\x00" +
		"\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00" +
		"\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\xff\xff\x00\x00\x00\x00\x00" +
		"\x00\x00\x00\x00\x00",
	"\x07\x00\x00\x00\x6a\x00\x00",
	"\xff\xff\xff\xff\x64\xff\xff",
}

func TestMalformed(t *testing.T) {
	for _, s := range malformed {
		testMalformed(t, strings.NewReader(s))
	}
}

func testMalformed(t *testing.T, r io.Reader) {
	d := NewDecoder(r)
	for d.Next() {
		if bad, ok := d.Msg().(BadMessage); ok {
			t.Logf("bad message (tag %d): %v", bad.Tag(), bad.Err)
		} else {
			t.Logf("parsed %s", d.Msg())
		}
	}
	if err := d.Err(); err != nil {
		t.Logf("stream error: %v", err)
	}
}
