package tracing

import (
	"bytes"
	"fmt"
	"testing"

	"aqwari.net/net/ninep/ninepproto"
)

func TestDecoderTrace(t *testing.T) {
	var stream bytes.Buffer
	enc := ninepproto.NewEncoder(&stream)
	enc.Tversion(8192, "9P2000")
	enc.Tclunk(1, 9)
	if err := enc.Err(); err != nil {
		t.Fatal(err)
	}

	var traced []string
	d := Decoder(&stream, func(m ninepproto.Msg) {
		traced = append(traced, fmt.Sprint(m))
	})

	var got int
	for d.Next() {
		got++
	}
	if err := d.Err(); err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("decoded %d messages, want 2", got)
	}
	if len(traced) != 2 {
		t.Fatalf("traced %d messages, want 2", len(traced))
	}
	t.Logf("traced: %q", traced)
}

func TestEncoderTrace(t *testing.T) {
	var out bytes.Buffer
	done := make(chan ninepproto.Msg, 1)
	enc := Encoder(&out, func(m ninepproto.Msg) {
		done <- ninepproto.Copy(m)
	})
	enc.Tflush(4, 3)

	m := <-done
	tf, ok := m.(ninepproto.Tflush)
	if !ok {
		t.Fatalf("traced %T, wanted Tflush", m)
	}
	if tf.Tag() != 4 || tf.Oldtag() != 3 {
		t.Errorf("traced %s", tf)
	}
}
