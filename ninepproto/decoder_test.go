package ninepproto

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// encode a handful of messages into one byte stream
func sampleStream(t *testing.T) []byte {
	var out bytes.Buffer
	enc := NewEncoder(&out)
	enc.Tversion(8192, "9P2000")
	enc.Tattach(1, 0, NoFid, "anon", "")
	if err := enc.Twalk(2, 0, 1, "usr", "glenda"); err != nil {
		t.Fatal(err)
	}
	enc.Topen(3, 1, OREAD)
	if err := enc.Tread(4, 1, 0, 512); err != nil {
		t.Fatal(err)
	}
	enc.Tclunk(5, 1)
	if err := enc.Err(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func TestDecodeStream(t *testing.T) {
	want := []string{"Tversion", "Tattach", "Twalk", "Topen", "Tread", "Tclunk"}

	d := NewDecoder(bytes.NewReader(sampleStream(t)))
	var got int
	for d.Next() {
		m := d.Msg()
		t.Logf("→ %s", m)
		if bad, ok := m.(BadMessage); ok {
			t.Fatalf("valid message decoded as bad message: %s", bad.Err)
		}
		got++
	}
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}
	if got != len(want) {
		t.Errorf("decoded %d messages, wanted %d", got, len(want))
	}
}

// The decoder must assemble complete frames even when the transport
// returns one byte at a time.
func TestDecodeShortReads(t *testing.T) {
	d := NewDecoder(iotest.OneByteReader(bytes.NewReader(sampleStream(t))))
	var got int
	for d.Next() {
		if bad, ok := d.Msg().(BadMessage); ok {
			t.Fatalf("valid message decoded as bad message: %s", bad.Err)
		}
		got++
	}
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("decoded %d messages, wanted 6", got)
	}
}

// A message declaring a size past the negotiated maximum is fatal.
func TestDecodeOversize(t *testing.T) {
	frame := make([]byte, 11)
	buint32(frame[0:4], 4097)
	frame[4] = msgTclunk
	buint16(frame[5:7], 1)
	buint32(frame[7:11], 9)

	d := NewDecoder(bytes.NewReader(frame))
	d.MaxSize = 4096
	if d.Next() {
		t.Fatalf("oversized message decoded as %s", d.Msg())
	}
	if err := d.Err(); err != ErrMaxSize {
		t.Errorf("got error %v, wanted ErrMaxSize", err)
	}
}

// A stream that ends mid-frame is an unexpected EOF; a stream that
// ends between frames is a clean end.
func TestDecodeEOF(t *testing.T) {
	stream := sampleStream(t)

	d := NewDecoder(bytes.NewReader(stream[:len(stream)-3]))
	for d.Next() {
	}
	if err := d.Err(); err != io.ErrUnexpectedEOF {
		t.Errorf("truncated stream: got error %v, wanted unexpected EOF", err)
	}

	d = NewDecoder(bytes.NewReader(stream))
	for d.Next() {
	}
	if err := d.Err(); err != nil {
		t.Errorf("complete stream: got error %v, wanted none", err)
	}
}

// An invalid message with an intact header must surface as a
// BadMessage carrying the frame's tag, and the stream must remain
// usable afterwards.
func TestDecodeBadMessage(t *testing.T) {
	var stream bytes.Buffer

	// valid Tclunk
	buf := make([]byte, MinBufSize)
	m, _, err := NewTclunk(buf, 1, 9)
	if err != nil {
		t.Fatal(err)
	}
	stream.Write(m)

	// unknown type byte, plausible frame
	bad := make([]byte, 9)
	buint32(bad[0:4], 9)
	bad[4] = 99
	buint16(bad[5:7], 42)
	stream.Write(bad)

	// truncated body: Twalk that promises more elements than it holds
	walk := make([]byte, 20)
	buint32(walk[0:4], 20)
	walk[4] = msgTwalk
	buint16(walk[5:7], 43)
	buint32(walk[7:11], 1)
	buint32(walk[11:15], 2)
	buint16(walk[15:17], 12) // nwname = 12, but only 3 bytes follow
	stream.Write(walk)

	// valid Rflush
	m2, _, err := NewRflush(buf, 3)
	if err != nil {
		t.Fatal(err)
	}
	stream.Write(m2)

	d := NewDecoder(&stream)

	if !d.Next() {
		t.Fatalf("decoder stopped early: %v", d.Err())
	}
	if _, ok := d.Msg().(Tclunk); !ok {
		t.Fatalf("got %T, wanted Tclunk", d.Msg())
	}

	if !d.Next() {
		t.Fatalf("decoder stopped on bad message: %v", d.Err())
	}
	if bad, ok := d.Msg().(BadMessage); !ok {
		t.Fatalf("got %T, wanted BadMessage", d.Msg())
	} else if bad.Tag() != 42 {
		t.Errorf("bad message tag = %d, want 42", bad.Tag())
	}

	if !d.Next() {
		t.Fatalf("decoder stopped on truncated body: %v", d.Err())
	}
	if bad, ok := d.Msg().(BadMessage); !ok {
		t.Fatalf("got %T, wanted BadMessage", d.Msg())
	} else if bad.Tag() != 43 {
		t.Errorf("bad message tag = %d, want 43", bad.Tag())
	}

	if !d.Next() {
		t.Fatalf("decoder did not recover after bad message: %v", d.Err())
	}
	if _, ok := d.Msg().(Rflush); !ok {
		t.Fatalf("got %T, wanted Rflush", d.Msg())
	}
	if d.Next() {
		t.Errorf("unexpected trailing message %s", d.Msg())
	}
	if err := d.Err(); err != nil {
		t.Error(err)
	}
}

// A frame too small to carry a header is fatal.
func TestDecodeRunt(t *testing.T) {
	for _, s := range []string{
		"\x01\x00\x00\x00000",
		"\x06\x00\x00\x00\x6500",
	} {
		d := NewDecoder(strings.NewReader(s))
		if d.Next() {
			t.Errorf("runt frame %q decoded as %s", s, d.Msg())
		}
		if d.Err() == nil {
			t.Errorf("runt frame %q produced no error", s)
		}
	}
}

// Large Rread payloads must be split across multiple messages, each
// within the encoder's maximum size.
func TestRreadChunking(t *testing.T) {
	var out bytes.Buffer
	enc := NewEncoder(&out)
	enc.MaxSize = MinMsize

	data := make([]byte, MinMsize*3)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := enc.Rread(1, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(data) {
		t.Fatalf("wrote %d bytes, wanted %d", n, len(data))
	}

	var got []byte
	frames := 0
	d := NewDecoder(&out)
	for d.Next() {
		r, ok := d.Msg().(Rread)
		if !ok {
			t.Fatalf("got %T, wanted Rread", d.Msg())
		}
		if r.Len() > MinMsize {
			t.Errorf("frame of %d bytes exceeds max size %d", r.Len(), MinMsize)
		}
		got = append(got, r.Data()...)
		frames++
	}
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}
	if frames < 3 {
		t.Errorf("payload split into %d frames, wanted at least 3", frames)
	}
	if !bytes.Equal(got, data) {
		t.Error("reassembled payload differs from original")
	}
}
